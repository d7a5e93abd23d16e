package warmcache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func testRecord(key string) CacheRecord {
	return CacheRecord{
		Key:      key,
		Value:    []byte(`payload`),
		Category: CategoryCatalog,
		TTL:      time.Hour,
	}
}

func newTestWriter(t *testing.T, st *memStore, hooks Hooks) *Writer {
	t.Helper()
	w, err := NewWriter(WriterOptions{
		Store:     st,
		BaseDelay: time.Millisecond,
		Hooks:     hooks,
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w
}

func TestWriterSealsAndStores(t *testing.T) {
	st := newMemStore()
	w := newTestWriter(t, st, nil)

	rec := testRecord("warm:catalog:a")
	if err := w.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, ok, _ := st.Get(context.Background(), rec.Key)
	if !ok {
		t.Fatal("key not stored")
	}
	payload, err := openValue(raw)
	if err != nil {
		t.Fatalf("stored value has no valid envelope: %v", err)
	}
	if !bytes.Equal(payload, rec.Value) {
		t.Fatalf("payload = %q, want %q", payload, rec.Value)
	}
	if st.ttls[rec.Key] != time.Hour {
		t.Fatalf("ttl = %v, want 1h", st.ttls[rec.Key])
	}
}

func TestWriterRetriesTransientErrors(t *testing.T) {
	st := newMemStore()
	st.failSets = 2
	w := newTestWriter(t, st, nil)

	if err := w.Write(context.Background(), testRecord("warm:catalog:a")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if st.setCalls != 3 {
		t.Fatalf("set calls = %d, want 3", st.setCalls)
	}
}

func TestWriterRetriesRejectedWrites(t *testing.T) {
	st := newMemStore()
	st.rejectSets = 1
	hooks := &recHooks{}
	w := newTestWriter(t, st, hooks)

	rec := testRecord("warm:catalog:a")
	if err := w.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if st.setCalls != 2 {
		t.Fatalf("set calls = %d, want 2", st.setCalls)
	}
	if len(hooks.rejected) != 1 || hooks.rejected[0] != rec.Key {
		t.Fatalf("StoreSetRejected hook = %v, want [%s]", hooks.rejected, rec.Key)
	}
}

func TestWriterDoesNotRetryPermanentErrors(t *testing.T) {
	st := newMemStore()
	st.permErr = Permanent(errors.New("value too large"))
	w := newTestWriter(t, st, nil)

	err := w.Write(context.Background(), testRecord("warm:catalog:a"))
	if !IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if st.setCalls != 1 {
		t.Fatalf("set calls = %d, want 1 (no retries)", st.setCalls)
	}
}

func TestWriterExhaustsRetries(t *testing.T) {
	st := newMemStore()
	st.failSets = 10
	w := newTestWriter(t, st, nil)

	if err := w.Write(context.Background(), testRecord("warm:catalog:a")); err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	// One attempt plus the default three retries.
	if st.setCalls != 4 {
		t.Fatalf("set calls = %d, want 4", st.setCalls)
	}
}

func TestWriterRejectsInvalidRecords(t *testing.T) {
	st := newMemStore()
	w := newTestWriter(t, st, nil)

	if err := w.Write(context.Background(), CacheRecord{TTL: time.Hour}); !IsPermanent(err) {
		t.Fatalf("empty key: err = %v, want permanent", err)
	}
	if err := w.Write(context.Background(), CacheRecord{Key: "warm:catalog:a"}); !IsPermanent(err) {
		t.Fatalf("zero ttl: err = %v, want permanent", err)
	}
	if st.setCalls != 0 {
		t.Fatalf("set calls = %d, want 0", st.setCalls)
	}
}
