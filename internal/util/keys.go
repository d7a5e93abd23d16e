package util

import (
	"crypto/sha256"
	"fmt"
)

// RecordKey returns the deterministic cache key for a source row:
// warm:<category>:<id>. Identities that would produce awkward keys (very
// long, or containing separators/control bytes) are replaced by a short
// stable hash, keeping the mapping deterministic either way.
func RecordKey(category, id string) string {
	if needsHash(id) {
		id = shortHash(id)
	}
	return "warm:" + category + ":" + id
}

func needsHash(id string) bool {
	if len(id) > 64 {
		return true
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] == ':' {
			return true
		}
	}
	return false
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)[:16]
}
