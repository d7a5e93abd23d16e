// Package store defines the cache-store protocol consumed by the warming
// pipeline: set-with-expiry, get, key count, and memory introspection. Any
// store implementing these operations is substitutable.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte previously passed to Set for a key. If a store performs
// internal transforms (e.g. compression), they must be fully reversed.
package store

import (
	"context"
	"time"
)

// MemStats is a point-in-time memory sample of the store.
type MemStats struct {
	// UsedBytes is the store's reported resident value memory.
	UsedBytes int64
	// FragmentationRatio is allocator RSS over logical usage. Stores without
	// an allocator-level signal report 1.0.
	FragmentationRatio float64
}

// Store is a byte store with per-entry TTLs plus the introspection calls the
// validation gate samples. Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// IO/remote errors return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. Returns ok=false when the store
	// rejected the write under pressure (retryable by the caller).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// KeyCount returns the number of live keys in the store.
	KeyCount(ctx context.Context) (int64, error)

	// Mem samples memory usage and fragmentation.
	Mem(ctx context.Context) (MemStats, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
