package warmcache

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks the cache store as completely unreachable.
	// Fatal to the whole warming job, unlike per-category source failures.
	ErrStoreUnavailable = errors.New("warmcache: cache store unreachable")

	// ErrJobActive rejects a new warming job while any of its categories is
	// still held by an in-progress job.
	ErrJobActive = errors.New("warmcache: warming job already in progress for a requested category")

	// ErrProvisioningFailed and ErrRoutingFailed are fatal to a cutover
	// attempt and are always followed by teardown of anything partially
	// provisioned.
	ErrProvisioningFailed = errors.New("warmcache: environment provisioning failed")
	ErrRoutingFailed      = errors.New("warmcache: traffic switch failed")

	errSetRejected = errors.New("warmcache: store rejected write under pressure")
)

// MalformedRowError marks a source row that cannot become a cache record:
// missing required fields or an unserializable payload. Counted as failed,
// never aborts the batch.
type MalformedRowError struct {
	RowID  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row %q: %s", e.RowID, e.Reason)
}

// PermanentError marks a cache write failure that retrying cannot fix
// (malformed key, value too large). The writer fails fast on these.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable. Store implementations may use it to
// flag errors the writer must not retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
