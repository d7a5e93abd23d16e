package warmcache

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/unkn0wn-root/warmcache/source"
)

// categoryWarmer drains one category from the source into the cache store:
// Idle -> Paging -> (Transforming -> Writing)* -> Done | Aborted.
//
// Batches are processed sequentially; page N+1 is not requested until page
// N's writes are accounted for, bounding memory to one batch. Every row
// outcome is counted - a row is never silently dropped. Only source
// unavailability after the warmer's own retries aborts the category; the
// abort is non-fatal to the job.
type categoryWarmer struct {
	category    Category
	reader      source.Reader
	transformer Transformer
	policy      TTLPolicy
	writer      *Writer
	batchSize   int
	readBackoff Backoff
	log         Logger
	hooks       Hooks
	rng         *rand.Rand
}

func (w *categoryWarmer) run(ctx context.Context) CategoryStats {
	stats := CategoryStats{Category: w.category, Status: StatusDone}
	start := time.Now()
	defer func() {
		stats.DurationMs = time.Since(start).Milliseconds()
	}()

	// Cancellation is cooperative at batch boundaries: no new pages are
	// requested, but the in-flight batch finishes its writes.
	writeCtx := context.WithoutCancel(ctx)

	offset := 0
	var sampled int64
	for {
		if ctx.Err() != nil {
			stats.Status = StatusAborted
			w.hooks.CategoryAborted(w.category, ctx.Err())
			w.log.Info("category warmer cancelled", Fields{"category": w.category, "attempted": stats.Attempted})
			return stats
		}

		var batch []source.Row
		err := w.readBackoff.Do(ctx, func(ctx context.Context) error {
			b, rerr := w.reader.Read(ctx, string(w.category), offset, w.batchSize)
			if rerr != nil {
				return rerr
			}
			batch = b
			return nil
		})
		if err != nil {
			stats.Status = StatusAborted
			w.hooks.CategoryAborted(w.category, err)
			w.log.Warn("category aborted: source retries exhausted", Fields{
				"category": w.category,
				"offset":   offset,
				"err":      err,
			})
			return stats
		}
		if len(batch) == 0 {
			// end-of-category
			break
		}

		for _, row := range batch {
			stats.Attempted++

			rec, terr := w.transformer.Transform(row, w.category)
			if terr != nil {
				stats.Failed++
				w.hooks.RecordFailed(w.category, row.ID, terr)
				continue
			}
			rec.TTL = w.policy.Compute(rec.Popularity)

			if werr := w.writer.Write(writeCtx, rec); werr != nil {
				stats.Failed++
				w.hooks.RecordFailed(w.category, row.ID, werr)
				continue
			}
			stats.Succeeded++

			// Reservoir sample of size one over successful writes.
			sampled++
			if w.rng.Int63n(sampled) == 0 {
				stats.SampleKey = rec.Key
			}
		}

		w.hooks.BatchDone(w.category, len(batch))
		offset += len(batch)
	}

	w.log.Info("category warmed", Fields{
		"category":  w.category,
		"attempted": stats.Attempted,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
	})
	return stats
}

func retryableSourceError(err error) bool {
	return errors.Is(err, source.ErrUnavailable) || errors.Is(err, source.ErrTimeout)
}
