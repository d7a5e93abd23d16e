// Package audit persists warming reports and cutover decisions as immutable,
// timestamped records keyed by job id, retained for trend analysis (e.g.
// memory growth over successive warmings).
package audit

import (
	"errors"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/unkn0wn-root/warmcache"
	"github.com/unkn0wn-root/warmcache/codec"
)

var (
	ErrNotFound        = errors.New("audit: record not found")
	ErrAlreadyRecorded = errors.New("audit: record already exists")
)

const (
	reportPrefix      = "report:"
	decisionPrefix    = "decision:"
	latestReportKey   = "latest:report"
	latestDecisionKey = "latest:decision"
)

// Log is an append-only store on disk. Records are write-once: re-saving a
// job id fails with ErrAlreadyRecorded (re-running warming produces a new
// job, never a rewrite).
type Log struct {
	db        *leveldb.DB
	reports   codec.Codec[warmcache.Report]
	decisions codec.Codec[warmcache.Decision]
}

var _ warmcache.Recorder = (*Log)(nil)

// Options override the persisted record codecs. Pick one encoding and stay
// on it: records written under a different codec will not decode.
type Options struct {
	Reports   codec.Codec[warmcache.Report]   // nil => msgpack
	Decisions codec.Codec[warmcache.Decision] // nil => msgpack
}

func Open(path string) (*Log, error) { return OpenWith(path, Options{}) }

func OpenWith(path string, opts Options) (*Log, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	l := &Log{db: db, reports: opts.Reports, decisions: opts.Decisions}
	if l.reports == nil {
		l.reports = codec.Msgpack[warmcache.Report]{}
	}
	if l.decisions == nil {
		l.decisions = codec.Msgpack[warmcache.Decision]{}
	}
	return l, nil
}

func (l *Log) Close() error { return l.db.Close() }

func (l *Log) SaveReport(r *warmcache.Report) error {
	if r == nil || r.JobID == "" {
		return errors.New("audit: report with job id is required")
	}
	key := []byte(reportPrefix + r.JobID)
	if has, err := l.db.Has(key, nil); err != nil {
		return err
	} else if has {
		return ErrAlreadyRecorded
	}
	b, err := l.reports.Encode(*r)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(key, b)
	batch.Put([]byte(latestReportKey), []byte(r.JobID))
	return l.db.Write(batch, nil)
}

func (l *Log) SaveDecision(d warmcache.Decision) error {
	if d.JobID == "" {
		return errors.New("audit: decision with job id is required")
	}
	key := []byte(decisionPrefix + d.JobID)
	if has, err := l.db.Has(key, nil); err != nil {
		return err
	} else if has {
		return ErrAlreadyRecorded
	}
	b, err := l.decisions.Encode(d)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(key, b)
	batch.Put([]byte(latestDecisionKey), []byte(d.JobID))
	return l.db.Write(batch, nil)
}

func (l *Log) Report(jobID string) (*warmcache.Report, error) {
	b, err := l.db.Get([]byte(reportPrefix+jobID), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r, err := l.reports.Decode(b)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (l *Log) Decision(jobID string) (warmcache.Decision, error) {
	b, err := l.db.Get([]byte(decisionPrefix+jobID), nil)
	if err == leveldb.ErrNotFound {
		return warmcache.Decision{}, ErrNotFound
	}
	if err != nil {
		return warmcache.Decision{}, err
	}
	return l.decisions.Decode(b)
}

func (l *Log) LatestReport() (*warmcache.Report, error) {
	id, err := l.db.Get([]byte(latestReportKey), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l.Report(string(id))
}

func (l *Log) LatestDecision() (warmcache.Decision, error) {
	id, err := l.db.Get([]byte(latestDecisionKey), nil)
	if err == leveldb.ErrNotFound {
		return warmcache.Decision{}, ErrNotFound
	}
	if err != nil {
		return warmcache.Decision{}, err
	}
	return l.Decision(string(id))
}

// Reports returns up to limit reports, newest first. limit <= 0 returns all.
func (l *Log) Reports(limit int) ([]*warmcache.Report, error) {
	iter := l.db.NewIterator(ldbutil.BytesPrefix([]byte(reportPrefix)), nil)
	defer iter.Release()

	var out []*warmcache.Report
	for iter.Next() {
		r, err := l.reports.Decode(iter.Value())
		if err != nil {
			return nil, err
		}
		rc := r
		out = append(out, &rc)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
