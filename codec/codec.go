// Package codec provides pluggable (de)serializers for cache payloads and
// persisted audit records.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
