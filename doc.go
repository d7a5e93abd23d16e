// Package warmcache implements cache warming and cutover validation: it
// pre-populates a distributed key-value cache with derived data before a
// deployment receives production traffic, and gates traffic switchover on
// measurable warm-cache health.
//
// Components:
//   - source.Reader: bounded, ordered paging from the relational source.
//   - Transformer: raw row -> canonical CacheRecord (stable key, deterministic
//     payload, popularity signal).
//   - TTLPolicy: per-category expiry, biased longer for hot records.
//   - Writer: set-with-expiry against a store.Store, transient retry with
//     exponential backoff.
//   - Orchestrator: one warmer per category, bounded parallelism, per-category
//     accounting, a single telemetry sample, one immutable Report per job.
//   - Gate: threshold checks plus a live-sample probe; emits a Decision.
//   - Controller: deploy -> warm -> validate -> cut over or roll back.
//
// Keys:
//
//	warm:<category>:<sourceID> - one record per source row; deterministic, so
//	re-warming an unchanged source is idempotent (same keys, same bytes,
//	fresh TTLs).
//
// Failure policy: malformed rows and individual write failures are counted,
// never thrown; an unreachable category aborts only itself; only a fully
// unreachable cache store fails the job.
package warmcache
