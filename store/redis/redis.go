// Package redis implements store.Store over a Redis server or cluster.
package redis

import (
	"bufio"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	st "github.com/unkn0wn-root/warmcache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ st.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // non-positive => no expiry per provider contract
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Redis) KeyCount(ctx context.Context) (int64, error) {
	return s.rdb.DBSize(ctx).Result()
}

// Mem parses INFO MEMORY for used_memory and mem_fragmentation_ratio.
func (s *Redis) Mem(ctx context.Context) (st.MemStats, error) {
	info, err := s.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return st.MemStats{}, err
	}
	return parseMemoryInfo(info), nil
}

func parseMemoryInfo(info string) st.MemStats {
	m := st.MemStats{FragmentationRatio: 1.0}
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch k {
		case "used_memory":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				m.UsedBytes = n
			}
		case "mem_fragmentation_ratio":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				m.FragmentationRatio = f
			}
		}
	}
	return m
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
