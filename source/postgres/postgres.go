// Package postgres implements source.Reader over a pgx connection pool.
// Queries are read-only and page with a stable ORDER BY on the id column.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkn0wn-root/warmcache"
	"github.com/unkn0wn-root/warmcache/source"
)

type Reader struct {
	pool         *pgxpool.Pool
	specs        map[string]source.TableSpec
	queryTimeout time.Duration
	log          warmcache.Logger
}

var _ source.Reader = (*Reader)(nil)

type Config struct {
	Pool         *pgxpool.Pool
	Specs        map[string]source.TableSpec // keyed by category name
	QueryTimeout time.Duration               // 0 => 10s
	Logger       warmcache.Logger            // nil => no logging
}

func New(cfg Config) (*Reader, error) {
	if cfg.Pool == nil {
		return nil, errors.New("postgres reader: nil pool")
	}
	if len(cfg.Specs) == 0 {
		return nil, errors.New("postgres reader: no table specs")
	}
	for cat, spec := range cfg.Specs {
		if spec.Table == "" || spec.IDColumn == "" {
			return nil, fmt.Errorf("postgres reader: category %q: table and id column are required", cat)
		}
	}
	r := &Reader{
		pool:         cfg.Pool,
		specs:        cfg.Specs,
		queryTimeout: cfg.QueryTimeout,
		log:          cfg.Logger,
	}
	if r.queryTimeout <= 0 {
		r.queryTimeout = 10 * time.Second
	}
	if r.log == nil {
		r.log = warmcache.NopLogger{}
	}
	return r, nil
}

func (r *Reader) Read(ctx context.Context, category string, offset, limit int) ([]source.Row, error) {
	spec, ok := r.specs[category]
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", source.ErrUnavailable, category)
	}

	cols := make([]string, 0, len(spec.PayloadColumns)+2)
	cols = append(cols, spec.IDColumn+"::text")
	if spec.PopularityColumn != "" {
		cols = append(cols, fmt.Sprintf("COALESCE(%s, 0)::float8", spec.PopularityColumn))
	} else {
		cols = append(cols, "0::float8")
	}
	cols = append(cols, spec.PayloadColumns...)

	q := sq.Select(cols...).
		From(spec.Table).
		OrderBy(spec.IDColumn + " ASC").
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", source.ErrUnavailable, err)
	}

	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(qctx, sqlStr, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]source.Row, 0, limit)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, classify(err)
		}
		row := source.Row{Data: make(map[string]any, len(spec.PayloadColumns))}
		if s, ok := vals[0].(string); ok {
			row.ID = s
		}
		if f, ok := vals[1].(float64); ok {
			row.Popularity = f
		}
		for i, col := range spec.PayloadColumns {
			row.Data[col] = vals[i+2]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	r.log.Debug("source page read", warmcache.Fields{
		"category": category,
		"offset":   offset,
		"rows":     len(out),
		"took_ms":  time.Since(start).Milliseconds(),
	})
	return out, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", source.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", source.ErrUnavailable, err)
}
