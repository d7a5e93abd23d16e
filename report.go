package warmcache

import "time"

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobAborted   JobStatus = "aborted"
)

type CategoryStatus string

const (
	StatusDone    CategoryStatus = "done"
	StatusAborted CategoryStatus = "aborted"
)

// CategoryStats is one category's accounting for one job. Owned exclusively
// by its warmer during execution, read-only once merged into the report.
// Attempted == Succeeded + Failed at report time, always.
type CategoryStats struct {
	Category   Category       `json:"category"`
	Status     CategoryStatus `json:"status"`
	Attempted  int64          `json:"attempted"`
	Succeeded  int64          `json:"succeeded"`
	Failed     int64          `json:"failed"`
	DurationMs int64          `json:"duration_ms"`

	// SampleKey is one reservoir-sampled key out of this category's
	// successful writes, probed by the validation gate.
	SampleKey string `json:"sample_key,omitempty"`
}

// Telemetry is the cache-wide sample taken exactly once after the last
// warmer finishes.
type Telemetry struct {
	TotalKeys          int64   `json:"total_keys"`
	MemoryUsedBytes    int64   `json:"memory_used_bytes"`
	FragmentationRatio float64 `json:"fragmentation_ratio"`
}

// Report is the immutable outcome of one warming job.
type Report struct {
	JobID      string          `json:"job_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Status     JobStatus       `json:"status"`
	Categories []CategoryStats `json:"categories"`
	Telemetry  Telemetry       `json:"telemetry"`
}

// Stats returns the stats for one category, if present.
func (r *Report) Stats(cat Category) (CategoryStats, bool) {
	for _, cs := range r.Categories {
		if cs.Category == cat {
			return cs, true
		}
	}
	return CategoryStats{}, false
}

func (r *Report) TotalSucceeded() int64 {
	var n int64
	for _, cs := range r.Categories {
		n += cs.Succeeded
	}
	return n
}

// AbortedCategories lists categories that gave up before draining their
// source. Empty for a fully successful job.
func (r *Report) AbortedCategories() []Category {
	var out []Category
	for _, cs := range r.Categories {
		if cs.Status == StatusAborted {
			out = append(out, cs.Category)
		}
	}
	return out
}

// Recorder persists reports and decisions as immutable, timestamped records
// keyed by job id, retained for audit and trend analysis.
type Recorder interface {
	SaveReport(r *Report) error
	SaveDecision(d Decision) error
}
