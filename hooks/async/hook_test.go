package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/unkn0wn-root/warmcache"
)

type countingHooks struct {
	mu       sync.Mutex
	failed   int
	rejected int
	batches  int
	aborted  int
	finished int
}

func (c *countingHooks) RecordFailed(warmcache.Category, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

func (c *countingHooks) StoreSetRejected(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
}

func (c *countingHooks) BatchDone(warmcache.Category, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
}

func (c *countingHooks) CategoryAborted(warmcache.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted++
}

func (c *countingHooks) JobFinished(string, warmcache.JobStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished++
}

func TestEventsDrainOnClose(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 2, 64)

	for i := 0; i < 10; i++ {
		h.RecordFailed(warmcache.CategoryCatalog, "row", errors.New("bad"))
		h.BatchDone(warmcache.CategoryCatalog, 50)
	}
	h.StoreSetRejected("warm:catalog:a")
	h.CategoryAborted(warmcache.CategoryUsers, errors.New("gone"))
	h.JobFinished("job-1", warmcache.JobCompleted)

	h.Close()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if inner.failed != 10 || inner.batches != 10 {
		t.Fatalf("failed = %d, batches = %d, want 10 each", inner.failed, inner.batches)
	}
	if inner.rejected != 1 || inner.aborted != 1 || inner.finished != 1 {
		t.Fatalf("rejected/aborted/finished = %d/%d/%d, want 1 each",
			inner.rejected, inner.aborted, inner.finished)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := New(&countingHooks{}, 1, 8)
	h.Close()
	h.Close() // must not panic
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 1, 1)

	// Far more events than the queue holds; the call must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			h.BatchDone(warmcache.CategoryCatalog, 1)
		}
	}()
	<-done
	h.Close()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if inner.batches == 0 || inner.batches > 10000 {
		t.Fatalf("batches = %d, want within (0, 10000]", inner.batches)
	}
}
