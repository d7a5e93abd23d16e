package warmcache

import (
	"errors"
	"time"
)

// TTLPolicy is one category's expiry triple. Expiry grows with the record's
// popularity signal: hot records stay warm longer, bounding cache-miss
// fan-out to the source store, while cold data expires sooner to bound
// memory growth.
type TTLPolicy struct {
	Base  time.Duration // floor, applied at popularity 0
	Bonus time.Duration // added per unit of popularity signal
	Max   time.Duration // ceiling
}

func (p TTLPolicy) Validate() error {
	if p.Base <= 0 {
		return errors.New("warmcache: ttl policy base must be positive")
	}
	if p.Bonus < 0 {
		return errors.New("warmcache: ttl policy bonus must not be negative")
	}
	if p.Max < p.Base {
		return errors.New("warmcache: ttl policy max must be >= base")
	}
	return nil
}

// Compute returns Base + Bonus*popularity clamped to [Base, Max]. The result
// is monotone non-decreasing in popularity and always positive for a valid
// policy.
func (p TTLPolicy) Compute(popularity float64) time.Duration {
	if popularity < 0 {
		popularity = 0
	}
	bonus := popularity * float64(p.Bonus)
	if ceil := float64(p.Max - p.Base); bonus > ceil {
		bonus = ceil
	}
	ttl := p.Base + time.Duration(bonus)
	if ttl < p.Base {
		ttl = p.Base
	}
	if ttl > p.Max {
		ttl = p.Max
	}
	return ttl
}
