package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/singleflight"
)

// CacheConfig bounds the metadata cache.
type CacheConfig struct {
	MaxEntries  int64
	TTL         time.Duration // 0 = entries never expire
	NegativeTTL time.Duration // 0 = failures are not cached
}

type cacheEntry struct {
	md  *TokenMetadata
	err error
}

// CachedResolver memoises a Source by mint. Concurrent lookups of the same
// mint share a single fetch, and failures are remembered for NegativeTTL.
type CachedResolver struct {
	source Source
	cache  *ristretto.Cache[string, cacheEntry]
	group  singleflight.Group
	cfg    CacheConfig
}

// NewCachedResolver wraps source with a bounded cache.
func NewCachedResolver(source Source, cfg CacheConfig) (*CachedResolver, error) {
	if cfg.MaxEntries < 1 {
		return nil, fmt.Errorf("cache max entries must be at least 1")
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, cacheEntry]{
		NumCounters:        cfg.MaxEntries * 10,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &CachedResolver{source: source, cache: cache, cfg: cfg}, nil
}

// Resolve returns cached metadata for mint, fetching it on a miss.
func (c *CachedResolver) Resolve(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error) {
	key := mint.String()
	if e, ok := c.cache.Get(key); ok {
		return copyMetadata(e.md), e.err
	}

	// The shared fetch must outlive any single caller; each caller stops
	// waiting on its own ctx instead.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		md, err := c.source.Resolve(context.WithoutCancel(ctx), mint)
		c.store(key, md, err)
		return md, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyMetadata(res.Val.(*TokenMetadata)), nil
	}
}

func (c *CachedResolver) store(key string, md *TokenMetadata, err error) {
	if err == nil {
		c.cache.SetWithTTL(key, cacheEntry{md: md}, 1, c.cfg.TTL)
		return
	}
	if c.cfg.NegativeTTL <= 0 || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.cache.SetWithTTL(key, cacheEntry{err: err}, 1, c.cfg.NegativeTTL)
}

// Stats returns the cache hit and miss counts.
func (c *CachedResolver) Stats() (hits, misses uint64) {
	return c.cache.Metrics.Hits(), c.cache.Metrics.Misses()
}

// Close releases the cache's background goroutines.
func (c *CachedResolver) Close() {
	c.cache.Close()
}

func copyMetadata(md *TokenMetadata) *TokenMetadata {
	if md == nil {
		return nil
	}
	cp := *md
	return &cp
}
