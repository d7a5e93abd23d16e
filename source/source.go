// Package source defines the read-only relational source contract the
// warming pipeline pages from.
package source

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable marks connection-level failures against the source
	// store. The category warmer retries, then aborts the category.
	ErrUnavailable = errors.New("source: unavailable")

	// ErrTimeout marks a query exceeding its per-call deadline.
	ErrTimeout = errors.New("source: query timeout")
)

// Row is one raw record from the relational source. Data holds the payload
// columns keyed by column name; the transformer validates and serializes it.
type Row struct {
	ID         string
	Popularity float64
	Data       map[string]any
}

// Reader pages rows of one category deterministically: a stable ORDER BY on
// the id column, so restarting a job after partial failure neither skips nor
// duplicates rows across batch boundaries. An empty batch signals
// end-of-category. Readers are stateless; retries belong to the caller.
type Reader interface {
	Read(ctx context.Context, category string, offset, limit int) ([]Row, error)
}

// TableSpec maps one category to its source table.
type TableSpec struct {
	Table            string
	IDColumn         string
	PopularityColumn string // optional; missing => popularity 0
	PayloadColumns   []string
}
