// Package ristretto implements store.Store over an in-process Ristretto
// cache. Metrics must stay enabled: KeyCount and Mem are derived from them.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	st "github.com/unkn0wn-root/warmcache/store"
)

type Store struct {
	c *rc.Cache
}

var _ st.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.c.SetWithTTL(key, value, int64(len(value)), ttl), nil
}

// KeyCount approximates live keys as added minus evicted; Ristretto keeps no
// exact live count.
func (s *Store) KeyCount(_ context.Context) (int64, error) {
	s.c.Wait()
	m := s.c.Metrics
	added := int64(m.KeysAdded())
	evicted := int64(m.KeysEvicted())
	n := added - evicted
	if n < 0 {
		n = 0
	}
	return n, nil
}

func (s *Store) Mem(_ context.Context) (st.MemStats, error) {
	s.c.Wait()
	m := s.c.Metrics
	used := int64(m.CostAdded()) - int64(m.CostEvicted())
	if used < 0 {
		used = 0
	}
	return st.MemStats{UsedBytes: used, FragmentationRatio: 1.0}, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}
