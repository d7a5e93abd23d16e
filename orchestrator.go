package warmcache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/warmcache/source"
	"github.com/unkn0wn-root/warmcache/store"
)

// JobSpec configures one warming invocation.
type JobSpec struct {
	Categories  []Category
	BatchSize   int // rows per source page; 0 => 100
	MaxRetries  int // per read/write; 0 => 3
	MaxParallel int // concurrent category warmers; 0 => 2
}

// Orchestrator runs category warmers and assembles warming reports. Each
// category is an independent unit of work; parallelism is bounded because
// every warmer holds its own source and cache connection. Category sets of
// concurrent jobs must not overlap: a job touching an in-progress category
// is rejected with ErrJobActive.
type Orchestrator struct {
	reader       source.Reader
	store        store.Store
	policies     map[Category]TTLPolicy
	transformer  Transformer
	baseDelay    time.Duration
	writeTimeout time.Duration
	log          Logger
	hooks        Hooks

	mu     sync.Mutex
	active map[Category]string // category -> owning job id
}

type OrchestratorOptions struct {
	// Required
	Reader   source.Reader
	Store    store.Store
	Policies map[Category]TTLPolicy

	// Required payload fields per category, enforced by the transformer.
	Required map[Category][]string

	BaseDelay    time.Duration // retry base delay; 0 => 200ms
	WriteTimeout time.Duration // per cache round-trip; 0 => 5s
	Logger       Logger        // nil => NopLogger
	Hooks        Hooks         // nil => NopHooks
}

func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Reader == nil {
		return nil, errors.New("warmcache: reader is required")
	}
	if opts.Store == nil {
		return nil, errors.New("warmcache: store is required")
	}
	if len(opts.Policies) == 0 {
		return nil, errors.New("warmcache: at least one ttl policy is required")
	}
	for cat, p := range opts.Policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("category %s: %w", cat, err)
		}
	}
	return &Orchestrator{
		reader:       opts.Reader,
		store:        opts.Store,
		policies:     opts.Policies,
		transformer:  NewTransformer(opts.Required),
		baseDelay:    coalesce(opts.BaseDelay, 200*time.Millisecond),
		writeTimeout: coalesce(opts.WriteTimeout, 5*time.Second),
		log:          coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:        coalesce[Hooks](opts.Hooks, NopHooks{}),
		active:       make(map[Category]string),
	}, nil
}

// Run executes one warming job and always returns a report when the job ran,
// even on partial failure. An error means the job never started: invalid
// spec, overlapping in-progress job, or an unreachable cache store.
//
// Job status: Failed iff every category reports zero successes; Aborted when
// cancelled; Completed otherwise, even with individually aborted categories
// (partial warming is a valid, reportable outcome).
func (o *Orchestrator) Run(ctx context.Context, spec JobSpec) (*Report, error) {
	cats, err := o.normalize(spec.Categories)
	if err != nil {
		return nil, err
	}
	batchSize := coalesce(spec.BatchSize, 100)
	maxRetries := coalesce(spec.MaxRetries, 3)
	maxParallel := coalesce(spec.MaxParallel, 2)

	jobID := uuid.NewString()
	if err := o.acquire(cats, jobID); err != nil {
		return nil, err
	}
	defer o.release(cats)

	if err := o.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	writer, err := NewWriter(WriterOptions{
		Store:        o.store,
		MaxRetries:   maxRetries,
		BaseDelay:    o.baseDelay,
		WriteTimeout: o.writeTimeout,
		Logger:       o.log,
		Hooks:        o.hooks,
	})
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	o.log.Info("warming job started", Fields{
		"job":        jobID,
		"categories": cats,
		"batch_size": batchSize,
		"parallel":   maxParallel,
	})

	results := make([]CategoryStats, len(cats))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	for i, cat := range cats {
		wg.Add(1)
		go func(i int, cat Category) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = CategoryStats{Category: cat, Status: StatusAborted}
				o.hooks.CategoryAborted(cat, ctx.Err())
				return
			}
			defer func() { <-sem }()

			w := &categoryWarmer{
				category:    cat,
				reader:      o.reader,
				transformer: o.transformer,
				policy:      o.policies[cat],
				writer:      writer,
				batchSize:   batchSize,
				readBackoff: Backoff{
					MaxRetries: maxRetries,
					BaseDelay:  o.baseDelay,
					Retryable:  retryableSourceError,
				},
				log:   o.log,
				hooks: o.hooks,
				rng:   rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(i)<<32)),
			}
			results[i] = w.run(ctx)
		}(i, cat)
	}
	wg.Wait()

	report := &Report{
		JobID:      jobID,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Categories: results,
		Telemetry:  o.sampleTelemetry(ctx),
	}
	switch {
	case ctx.Err() != nil:
		report.Status = JobAborted
	case report.TotalSucceeded() == 0:
		report.Status = JobFailed
	default:
		report.Status = JobCompleted
	}

	o.hooks.JobFinished(jobID, report.Status)
	o.log.Info("warming job finished", Fields{
		"job":       jobID,
		"status":    report.Status,
		"succeeded": report.TotalSucceeded(),
		"aborted":   report.AbortedCategories(),
		"took_ms":   report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	})
	return report, nil
}

// sampleTelemetry reads cache-wide counters exactly once, after the last
// warmer finished. Sampling runs even when the job was cancelled, on its own
// deadline.
func (o *Orchestrator) sampleTelemetry(ctx context.Context) Telemetry {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var t Telemetry
	keys, err := o.store.KeyCount(tctx)
	if err != nil {
		o.log.Warn("telemetry key count failed", Fields{"err": err})
	} else {
		t.TotalKeys = keys
	}
	mem, err := o.store.Mem(tctx)
	if err != nil {
		o.log.Warn("telemetry memory sample failed", Fields{"err": err})
	} else {
		t.MemoryUsedBytes = mem.UsedBytes
		t.FragmentationRatio = mem.FragmentationRatio
	}
	return t
}

func (o *Orchestrator) normalize(cats []Category) ([]Category, error) {
	if len(cats) == 0 {
		return nil, errors.New("warmcache: at least one category is required")
	}
	seen := make(map[Category]bool, len(cats))
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		if !c.Valid() {
			return nil, fmt.Errorf("warmcache: unknown category %q", c)
		}
		if _, ok := o.policies[c]; !ok {
			return nil, fmt.Errorf("warmcache: no ttl policy for category %s", c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

func (o *Orchestrator) acquire(cats []Category, jobID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range cats {
		if owner, busy := o.active[c]; busy {
			return fmt.Errorf("%w: %s held by job %s", ErrJobActive, c, owner)
		}
	}
	for _, c := range cats {
		o.active[c] = jobID
	}
	return nil
}

func (o *Orchestrator) release(cats []Category) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range cats {
		delete(o.active, c)
	}
}
