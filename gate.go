package warmcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/unkn0wn-root/warmcache/codec"
	"github.com/unkn0wn-root/warmcache/store"
)

// Thresholds configure the validation gate.
type Thresholds struct {
	// MinTotalKeys is the minimum cache-wide key count after warming.
	MinTotalKeys int64 `json:"min_total_keys"`

	// MinPerCategory is the minimum succeeded count per required category.
	MinPerCategory map[Category]int64 `json:"min_per_category"`

	// MaxFragmentation rejects a pathological allocator state; 0 disables.
	MaxFragmentation float64 `json:"max_fragmentation,omitempty"`
}

// Decision is the gate's verdict for exactly one report. Immutable and never
// re-evaluated: re-running warming produces a new job and a new decision.
type Decision struct {
	JobID     string    `json:"job_id"`
	Passed    bool      `json:"passed"`
	Reasons   []string  `json:"reasons,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Evaluate is the deterministic part of the gate: report counters and
// telemetry against thresholds, accumulating every failing reason rather
// than stopping at the first. The live-sample probe lives on Gate so this
// stays pure and testable.
func Evaluate(report *Report, th Thresholds) []string {
	var reasons []string

	if report.Status != JobCompleted {
		reasons = append(reasons, fmt.Sprintf("job status is %q, want %q", report.Status, JobCompleted))
	}
	if report.Telemetry.TotalKeys < th.MinTotalKeys {
		reasons = append(reasons, fmt.Sprintf("total keys %d below threshold %d",
			report.Telemetry.TotalKeys, th.MinTotalKeys))
	}

	cats := make([]Category, 0, len(th.MinPerCategory))
	for c := range th.MinPerCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	for _, cat := range cats {
		min := th.MinPerCategory[cat]
		cs, ok := report.Stats(cat)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("category %s missing from report, need %d warmed", cat, min))
			continue
		}
		if cs.Succeeded < min {
			reasons = append(reasons, fmt.Sprintf("category %s warmed %d below threshold %d",
				cat, cs.Succeeded, min))
		}
	}

	if th.MaxFragmentation > 0 && report.Telemetry.FragmentationRatio > th.MaxFragmentation {
		reasons = append(reasons, fmt.Sprintf("fragmentation ratio %.2f above threshold %.2f",
			report.Telemetry.FragmentationRatio, th.MaxFragmentation))
	}
	return reasons
}

// Gate inspects warming reports and live cache telemetry against thresholds
// and emits pass/fail decisions.
type Gate struct {
	store store.Store
	dec   codec.Limit[map[string]any]
	log   Logger
	now   func() time.Time
}

type GateOptions struct {
	// Required
	Store store.Store

	MaxSampleBytes int    // live-sample decode guard; 0 => 1MiB
	Logger         Logger // nil => NopLogger
}

func NewGate(opts GateOptions) (*Gate, error) {
	if opts.Store == nil {
		return nil, errors.New("warmcache: gate store is required")
	}
	return &Gate{
		store: opts.Store,
		dec: codec.Limit[map[string]any]{
			Inner:     codec.MustCBOR[map[string]any](true),
			MaxDecode: coalesce(opts.MaxSampleBytes, 1<<20),
		},
		log: coalesce[Logger](opts.Logger, NopLogger{}),
		now: time.Now,
	}, nil
}

// Validate checks the report against thresholds plus one live lookup of a
// recently-written key per warmed category, confirming the value
// deserializes - silent corruption that counters alone would miss. Passed is
// true only when every check succeeds.
func (g *Gate) Validate(ctx context.Context, report *Report, th Thresholds) Decision {
	reasons := Evaluate(report, th)
	reasons = append(reasons, g.liveSample(ctx, report)...)

	d := Decision{
		JobID:     report.JobID,
		Passed:    len(reasons) == 0,
		Reasons:   reasons,
		DecidedAt: g.now().UTC(),
	}
	if d.Passed {
		g.log.Info("validation passed", Fields{"job": report.JobID})
	} else {
		g.log.Warn("validation failed", Fields{"job": report.JobID, "reasons": reasons})
	}
	return d
}

func (g *Gate) liveSample(ctx context.Context, report *Report) []string {
	var reasons []string
	for _, cs := range report.Categories {
		if cs.Succeeded == 0 || cs.SampleKey == "" {
			continue
		}
		raw, ok, err := g.store.Get(ctx, cs.SampleKey)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("live sample %s: lookup failed: %v", cs.Category, err))
			continue
		}
		if !ok {
			reasons = append(reasons, fmt.Sprintf("live sample %s: key %q missing", cs.Category, cs.SampleKey))
			continue
		}
		payload, err := openValue(raw)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("live sample %s: key %q: %v", cs.Category, cs.SampleKey, err))
			continue
		}
		if _, err := g.dec.Decode(payload); err != nil {
			reasons = append(reasons, fmt.Sprintf("live sample %s: key %q does not deserialize: %v",
				cs.Category, cs.SampleKey, err))
		}
	}
	return reasons
}
