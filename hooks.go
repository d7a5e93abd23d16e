package warmcache

// Hooks are lightweight callbacks for high-signal warming events.
// Implementations MUST be cheap and non-blocking; warmers call them on hot
// paths. Wrap with hooks/async to decouple slow sinks.
type Hooks interface {
	// A row failed to transform or write. err is a *MalformedRowError or the
	// final write error after retry exhaustion.
	RecordFailed(category Category, rowID string, err error)

	// The store returned ok=false on Set (backpressure/eviction).
	StoreSetRejected(key string)

	// A batch finished processing (success or not), rows attempted.
	BatchDone(category Category, rows int)

	// A category warmer gave up after exhausting source retries.
	CategoryAborted(category Category, err error)

	// A warming job reached a terminal status.
	JobFinished(jobID string, status JobStatus)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RecordFailed(Category, string, error) {}
func (NopHooks) StoreSetRejected(string)              {}
func (NopHooks) BatchDone(Category, int)              {}
func (NopHooks) CategoryAborted(Category, error)      {}
func (NopHooks) JobFinished(string, JobStatus)        {}
