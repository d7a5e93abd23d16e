// Package asynchook decouples warming event hooks from slow sinks: events
// are queued and delivered by background workers so warmers never block on a
// hook. The queue drops events when full - hooks are advisory.
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/warmcache"
)

type Hooks struct {
	inner warmcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ warmcache.Hooks = (*Hooks)(nil)

func New(inner warmcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to drain.
// Safe to call multiple times.
func (h *Hooks) Close() {
	h.once.Do(func() { close(h.q) })
	h.wg.Wait()
}

func (h *Hooks) enqueue(f func()) {
	select {
	case h.q <- f:
	default: // full; drop
	}
}

func (h *Hooks) RecordFailed(cat warmcache.Category, rowID string, err error) {
	h.enqueue(func() { h.inner.RecordFailed(cat, rowID, err) })
}

func (h *Hooks) StoreSetRejected(key string) {
	h.enqueue(func() { h.inner.StoreSetRejected(key) })
}

func (h *Hooks) BatchDone(cat warmcache.Category, rows int) {
	h.enqueue(func() { h.inner.BatchDone(cat, rows) })
}

func (h *Hooks) CategoryAborted(cat warmcache.Category, err error) {
	h.enqueue(func() { h.inner.CategoryAborted(cat, err) })
}

func (h *Hooks) JobFinished(jobID string, status warmcache.JobStatus) {
	h.enqueue(func() { h.inner.JobFinished(jobID, status) })
}
