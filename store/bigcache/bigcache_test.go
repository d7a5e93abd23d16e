package bigcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{LifeWindow: 10 * time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestSetGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Set(ctx, "warm:catalog:a", []byte("payload"), time.Hour)
	if err != nil || !ok {
		t.Fatalf("Set = (%v, %v), want (true, nil)", ok, err)
	}

	b, ok, err := s.Get(ctx, "warm:catalog:a")
	if err != nil || !ok {
		t.Fatalf("Get = (_, %v, %v), want found", ok, err)
	}
	if !bytes.Equal(b, []byte("payload")) {
		t.Fatalf("value = %q, want payload", b)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "warm:catalog:absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("missing key reported as found")
	}
}

func TestKeyCountAndMem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"warm:users:1", "warm:users:2", "warm:users:3"} {
		if _, err := s.Set(ctx, k, []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	n, err := s.KeyCount(ctx)
	if err != nil {
		t.Fatalf("KeyCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("key count = %d, want 3", n)
	}

	mem, err := s.Mem(ctx)
	if err != nil {
		t.Fatalf("Mem: %v", err)
	}
	if mem.UsedBytes <= 0 {
		t.Fatalf("used bytes = %d, want > 0", mem.UsedBytes)
	}
	if mem.FragmentationRatio != 1.0 {
		t.Fatalf("fragmentation = %v, want 1.0 in-process", mem.FragmentationRatio)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
