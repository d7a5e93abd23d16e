package warmcache

import (
	"github.com/unkn0wn-root/warmcache/codec"
	"github.com/unkn0wn-root/warmcache/internal/util"
	"github.com/unkn0wn-root/warmcache/source"
)

// Transformer converts raw source rows into canonical cache records.
// Transform is pure: the same row always yields the same record, including a
// byte-identical value (deterministic CBOR encoding), which is what makes
// re-warming idempotent.
type Transformer struct {
	required map[Category][]string
	enc      codec.CBOR[map[string]any]
}

// NewTransformer builds a transformer. required lists, per category, the
// payload fields a row must carry to be considered well-formed.
func NewTransformer(required map[Category][]string) Transformer {
	return Transformer{
		required: required,
		enc:      codec.MustCBOR[map[string]any](true),
	}
}

// Transform validates the row and produces a record with key and value set.
// The TTL is left zero; the category warmer applies its policy. Failures are
// *MalformedRowError: counted by the caller, never fatal to a batch.
func (t Transformer) Transform(row source.Row, category Category) (CacheRecord, error) {
	if row.ID == "" {
		return CacheRecord{}, &MalformedRowError{Reason: "empty source id"}
	}
	for _, field := range t.required[category] {
		if v, ok := row.Data[field]; !ok || v == nil {
			return CacheRecord{}, &MalformedRowError{RowID: row.ID, Reason: "missing required field " + field}
		}
	}
	payload, err := t.enc.Encode(row.Data)
	if err != nil {
		return CacheRecord{}, &MalformedRowError{RowID: row.ID, Reason: "unserializable payload: " + err.Error()}
	}
	return CacheRecord{
		Key:        util.RecordKey(string(category), row.ID),
		Value:      payload,
		Category:   category,
		Popularity: row.Popularity,
	}, nil
}
