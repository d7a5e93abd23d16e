package warmcache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/unkn0wn-root/warmcache/source"
)

func TestTransformProducesCanonicalRecord(t *testing.T) {
	tr := NewTransformer(nil)
	row := source.Row{
		ID:         "item-1",
		Popularity: 42,
		Data:       map[string]any{"name": "widget", "price": int64(999)},
	}

	rec, err := tr.Transform(row, CategoryCatalog)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if rec.Key != "warm:catalog:item-1" {
		t.Fatalf("key = %q, want %q", rec.Key, "warm:catalog:item-1")
	}
	if rec.Category != CategoryCatalog {
		t.Fatalf("category = %q", rec.Category)
	}
	if rec.Popularity != 42 {
		t.Fatalf("popularity = %v, want 42", rec.Popularity)
	}
	if rec.TTL != 0 {
		t.Fatalf("ttl = %v, want 0 (policy applied by the warmer)", rec.TTL)
	}
	if len(rec.Value) == 0 {
		t.Fatal("empty value")
	}
}

func TestTransformIsDeterministic(t *testing.T) {
	tr := NewTransformer(nil)
	// Two separately built maps with identical contents must serialize to
	// identical bytes regardless of insertion order.
	a := source.Row{ID: "x", Data: map[string]any{"a": int64(1), "b": "two", "c": 3.0}}
	b := source.Row{ID: "x", Data: map[string]any{"c": 3.0, "b": "two", "a": int64(1)}}

	ra, err := tr.Transform(a, CategoryUsers)
	if err != nil {
		t.Fatalf("Transform a: %v", err)
	}
	rb, err := tr.Transform(b, CategoryUsers)
	if err != nil {
		t.Fatalf("Transform b: %v", err)
	}
	if ra.Key != rb.Key {
		t.Fatalf("keys differ: %q vs %q", ra.Key, rb.Key)
	}
	if !bytes.Equal(ra.Value, rb.Value) {
		t.Fatal("values differ for identical payloads")
	}
}

func TestTransformRejectsEmptySourceID(t *testing.T) {
	tr := NewTransformer(nil)
	_, err := tr.Transform(source.Row{Data: map[string]any{"a": 1}}, CategoryCatalog)

	var mre *MalformedRowError
	if !errors.As(err, &mre) {
		t.Fatalf("err = %v, want *MalformedRowError", err)
	}
}

func TestTransformEnforcesRequiredFields(t *testing.T) {
	tr := NewTransformer(map[Category][]string{CategoryCatalog: {"name", "price"}})

	_, err := tr.Transform(source.Row{ID: "r1", Data: map[string]any{"name": "w"}}, CategoryCatalog)
	var mre *MalformedRowError
	if !errors.As(err, &mre) {
		t.Fatalf("err = %v, want *MalformedRowError", err)
	}
	if mre.RowID != "r1" {
		t.Fatalf("row id = %q, want r1", mre.RowID)
	}

	// A present-but-nil field counts as missing.
	_, err = tr.Transform(source.Row{ID: "r2", Data: map[string]any{"name": "w", "price": nil}}, CategoryCatalog)
	if !errors.As(err, &mre) {
		t.Fatalf("nil field: err = %v, want *MalformedRowError", err)
	}

	// Requirements are per category; other categories are unaffected.
	if _, err := tr.Transform(source.Row{ID: "r3", Data: map[string]any{"x": 1}}, CategoryUsers); err != nil {
		t.Fatalf("unconstrained category rejected: %v", err)
	}
}
