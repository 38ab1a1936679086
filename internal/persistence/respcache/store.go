// Package respcache keeps raw upstream response bodies keyed by request
// URL for a short TTL, so restarts and bursts do not re-fetch them.
package respcache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
	// Purge removes every entry and returns how many were dropped.
	Purge(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

type Stats struct {
	Backend    string
	Entries    int
	Expired    int
	StoredSize int64 // compressed bytes at rest
	RawSize    int64
}

type Config struct {
	Backend string // sqlite, redis or none
	Path    string
	TTL     time.Duration

	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

const DefaultTTL = 5 * time.Minute

// Open returns the store selected by cfg.Backend.
func Open(cfg Config) (Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sqlite":
		return OpenSQLite(cfg.Path, cfg.TTL)
	case "redis":
		return OpenRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix, cfg.TTL)
	case "none", "off":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown response cache backend %q", cfg.Backend)
	}
}

type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Put(context.Context, string, []byte) error { return nil }
func (Nop) Purge(context.Context) (int, error) { return 0, nil }
func (Nop) Stats(context.Context) (Stats, error) { return Stats{Backend: "none"}, nil }
func (Nop) Close() error { return nil }

// Bodies are stored zstd-compressed. Encoder and decoder are safe for
// concurrent EncodeAll/DecodeAll.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

func compress(b []byte) []byte { return encoder.EncodeAll(b, make([]byte, 0, len(b)/2)) }

func decompress(b []byte) ([]byte, error) {
	out, err := decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("respcache: corrupt body: %w", err)
	}
	return out, nil
}
