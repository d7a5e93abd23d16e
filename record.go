package warmcache

import (
	"fmt"
	"time"
)

// Category is a logical partition of cacheable data with its own TTL policy
// and warming logic.
type Category string

const (
	CategoryCatalog    Category = "catalog"    // catalog items
	CategoryUsers      Category = "users"      // per-user profile/session state
	CategoryAggregates Category = "aggregates" // derived aggregates
	CategoryQueries    Category = "queries"    // query-result cache
	CategoryReference  Category = "reference"  // reference lookup data
)

// Categories returns all known categories in canonical order.
func Categories() []Category {
	return []Category{
		CategoryCatalog,
		CategoryUsers,
		CategoryAggregates,
		CategoryQueries,
		CategoryReference,
	}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryCatalog, CategoryUsers, CategoryAggregates, CategoryQueries, CategoryReference:
		return true
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("warmcache: unknown category %q", s)
	}
	return c, nil
}

// CacheRecord is one canonical cache entry derived from a source row. The key
// is deterministic from category + source identity; the value is an opaque
// serialized payload the warming subsystem never interprets after creation.
type CacheRecord struct {
	Key        string
	Value      []byte
	Category   Category
	TTL        time.Duration
	Popularity float64
}
