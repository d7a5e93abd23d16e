package warmcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/warmcache/store"
)

// Writer applies cache records with at-least-once semantics and bounded
// retry. Transient errors (connection reset, timeout, write pressure) are
// retried with exponential backoff; permanent errors fail immediately.
// Re-writing a key with a fresh TTL is always safe: records are derived, not
// authoritative, so last-write-wins.
type Writer struct {
	store   store.Store
	backoff Backoff
	timeout time.Duration
	log     Logger
	hooks   Hooks
}

type WriterOptions struct {
	// Required
	Store store.Store

	MaxRetries   int           // 0 => 3
	BaseDelay    time.Duration // 0 => 200ms
	WriteTimeout time.Duration // per round-trip; 0 => 5s
	Logger       Logger        // nil => NopLogger
	Hooks        Hooks         // nil => NopHooks
}

func NewWriter(opts WriterOptions) (*Writer, error) {
	if opts.Store == nil {
		return nil, errors.New("warmcache: writer store is required")
	}
	w := &Writer{
		store:   opts.Store,
		timeout: coalesce(opts.WriteTimeout, 5*time.Second),
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	w.backoff = Backoff{
		MaxRetries: coalesce(opts.MaxRetries, 3),
		BaseDelay:  coalesce(opts.BaseDelay, 200*time.Millisecond),
		Retryable:  func(err error) bool { return !IsPermanent(err) },
	}
	return w, nil
}

// Write stores one record under its key with a fresh TTL. Returns nil on ack,
// the final error on permanent failure or retry exhaustion; never panics the
// batch.
func (w *Writer) Write(ctx context.Context, rec CacheRecord) error {
	if rec.Key == "" {
		return Permanent(errors.New("empty record key"))
	}
	if rec.TTL <= 0 {
		return Permanent(fmt.Errorf("non-positive ttl for %q", rec.Key))
	}

	sealed := sealValue(rec.Value)
	err := w.backoff.Do(ctx, func(ctx context.Context) error {
		wctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()

		ok, serr := w.store.Set(wctx, rec.Key, sealed, rec.TTL)
		if serr != nil {
			return serr
		}
		if !ok {
			w.hooks.StoreSetRejected(rec.Key)
			return errSetRejected
		}
		return nil
	})
	if err != nil {
		w.log.Debug("record write failed", Fields{"key": rec.Key, "err": err})
	}
	return err
}
