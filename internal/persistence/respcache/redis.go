package respcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore shares the cache between replicas. Expiry is left to Redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func OpenRedis(addr string, db int, prefix string, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	if prefix == "" {
		prefix = "sflc:resp:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

// Entries are hashes holding the compressed body and its raw length.
const (
	fieldBody = "body"
	fieldRaw  = "raw"
)

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.HGet(ctx, s.prefix+key, fieldBody).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out, err := decompress(b)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, body []byte) error {
	k := s.prefix + key
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldBody, compress(body), fieldRaw, len(body))
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) keys(ctx context.Context) ([]string, error) {
	var out []string
	it := s.rdb.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	for it.Next(ctx) {
		out = append(out, it.Val())
	}
	return out, it.Err()
}

func (s *RedisStore) Purge(ctx context.Context) (int, error) {
	keys, err := s.keys(ctx)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	return int(n), err
}

// Stats never reports expired entries; Redis drops them itself.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Backend: "redis", Entries: len(keys)}
	if len(keys) == 0 {
		return st, nil
	}
	stored := make([]*redis.IntCmd, len(keys))
	raw := make([]*redis.StringCmd, len(keys))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			stored[i] = pipe.HStrLen(ctx, k, fieldBody)
			raw[i] = pipe.HGet(ctx, k, fieldRaw)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, err
	}
	for i := range keys {
		if n, err := stored[i].Result(); err == nil {
			st.StoredSize += n
		}
		if n, err := raw[i].Int64(); err == nil {
			st.RawSize += n
		}
	}
	return st, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
