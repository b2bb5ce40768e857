// Package cache keeps recently fetched logos in memory.
package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/model"
)

// LogoCache is a size-bounded, TTL-based cache of logos keyed by
// SymbolRequest.Key. A nil *LogoCache is a valid, always-empty cache.
type LogoCache struct {
	cache *ristretto.Cache[string, *model.Logo]
	ttl   time.Duration
}

// NewLogoCache returns nil when the cache is disabled.
func NewLogoCache(cfg *config.Config) (*LogoCache, error) {
	if !cfg.Logo.Cache.Enabled {
		return nil, nil
	}
	return New(cfg.Logo.Cache.MaxBytes, time.Duration(cfg.Logo.Cache.TTLSeconds)*time.Second)
}

// New creates a cache holding at most maxBytes of image data.
func New(maxBytes int64, ttl time.Duration) (*LogoCache, error) {
	// Roughly ten counters per expected entry, assuming ~16 KiB logos.
	counters := maxBytes / (16 * 1024) * 10
	if counters < 1000 {
		counters = 1000
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, *model.Logo]{
		NumCounters:        counters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
		Cost: func(l *model.Logo) int64 {
			return int64(len(l.Data))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create logo cache: %w", err)
	}

	return &LogoCache{cache: c, ttl: ttl}, nil
}

// Get returns the cached logo for key.
func (c *LogoCache) Get(key string) (*model.Logo, bool) {
	if c == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

// Set stores logo under key. Admission is asynchronous and may be refused
// by the cache policy.
func (c *LogoCache) Set(key string, logo *model.Logo) {
	if c == nil {
		return
	}
	c.cache.SetWithTTL(key, logo, 0, c.ttl)
}

// Wait blocks until pending writes are applied.
func (c *LogoCache) Wait() {
	if c == nil {
		return
	}
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *LogoCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
