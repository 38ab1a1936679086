package upstream

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"sflcompanion.app/internal/farm"
)

// Fetcher is the uncached upstream surface; *Client implements it.
type Fetcher interface {
	FetchFarm(ctx context.Context, id uint64) (*farm.Snapshot, error)
	FetchLand(ctx context.Context, id uint64) (Land, error)
	FetchPrices(ctx context.Context) (*farm.PriceBook, error)
}

type ProviderOptions struct {
	SnapshotTTL time.Duration
	PriceTTL    time.Duration
	// Timeout bounds each upstream call, independently of the caller's
	// context.
	Timeout time.Duration
	Logger  *log.Logger
}

// Provider serves snapshots and price books from an in-memory TTL cache.
// Concurrent misses on one key share a single upstream call; different
// keys never wait on each other. Errors are not cached.
type Provider struct {
	fetch   Fetcher
	farms   *cache.Cache
	prices  *cache.Cache
	group   singleflight.Group
	timeout time.Duration
	log     *log.Logger
	now     func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

const pricesKey = "prices"

func NewProvider(f Fetcher, opts ProviderOptions) *Provider {
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = 180 * time.Second
	}
	if opts.PriceTTL <= 0 {
		opts.PriceTTL = 180 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Provider{
		fetch:   f,
		farms:   cache.New(opts.SnapshotTTL, 2*opts.SnapshotTTL),
		prices:  cache.New(opts.PriceTTL, 2*opts.PriceTTL),
		timeout: opts.Timeout,
		log:     opts.Logger,
		now:     time.Now,
	}
}

type ProviderStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

func (p *Provider) Stats() ProviderStats {
	return ProviderStats{
		Hits:    p.hits.Load(),
		Misses:  p.misses.Load(),
		Entries: p.farms.ItemCount() + p.prices.ItemCount(),
	}
}

// Flush drops every cached value.
func (p *Provider) Flush() {
	p.farms.Flush()
	p.prices.Flush()
}

func (p *Provider) load(ctx context.Context, c *cache.Cache, key string, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		p.hits.Add(1)
		return v, nil
	}
	v, err, _ := p.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			p.hits.Add(1)
			return v, nil
		}
		p.misses.Add(1)
		// The call runs to completion even if the requester goes away.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		v, err := fetch(fctx)
		if err != nil {
			if fctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, key, fctx.Err())
			}
			return nil, err
		}
		c.SetDefault(key, v)
		return v, nil
	})
	return v, err
}

func (p *Provider) primary(ctx context.Context, id uint64) (*farm.Snapshot, error) {
	v, err := p.load(ctx, p.farms, "farm:"+strconv.FormatUint(id, 10), func(ctx context.Context) (any, error) {
		return p.fetch.FetchFarm(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*farm.Snapshot), nil
}

func (p *Provider) land(ctx context.Context, id uint64) (Land, error) {
	v, err := p.load(ctx, p.farms, "land:"+strconv.FormatUint(id, 10), func(ctx context.Context) (any, error) {
		return p.fetch.FetchLand(ctx, id)
	})
	if err != nil {
		return Land{}, err
	}
	return v.(Land), nil
}

// Snapshot returns the farm's state. A failing land API degrades the
// snapshot to one without a position and a warning instead of failing.
// The returned value is a fresh copy the caller may keep.
func (p *Provider) Snapshot(ctx context.Context, id uint64) (*farm.Snapshot, error) {
	if id == 0 {
		return nil, ErrInvalidFarmID
	}
	base, err := p.primary(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := *base
	snap.FetchedAt = p.now()
	snap.Warnings = nil
	if base.Construction != nil {
		c := *base.Construction
		snap.Construction = &c
	}

	land, err := p.land(ctx, id)
	if err != nil {
		p.log.Printf("land api failed for farm %d: %v", id, err)
		snap.Warnings = append(snap.Warnings, "Island and level are unavailable right now; expansion planning is disabled.")
		return &snap, nil
	}
	snap.Island = land.Island
	snap.Level = land.Level
	snap.BumpkinLevel = land.BumpkinLevel
	if snap.Construction != nil {
		snap.Construction.TargetLevel = land.Level + 1
	}
	return &snap, nil
}

func (p *Provider) Prices(ctx context.Context) (*farm.PriceBook, error) {
	v, err := p.load(ctx, p.prices, pricesKey, func(ctx context.Context) (any, error) {
		b, err := p.fetch.FetchPrices(ctx)
		if err != nil {
			return nil, err
		}
		b.FetchedAt = p.now()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*farm.PriceBook), nil
}
