// Package resultcache stores intersection results in Redis as GeoJSON.
package resultcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/water-intersect/internal/cache/keys"
	"github.com/mohammed-shakir/water-intersect/internal/core/observability"
	"github.com/mohammed-shakir/water-intersect/internal/output"
	"github.com/mohammed-shakir/water-intersect/internal/source"
)

// Store is the subset of redisstore.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Cache never fails a run: store errors are logged and treated as misses.
type Cache struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

func New(store Store, ttl time.Duration, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, ttl: ttl, log: log}
}

// Key derives the cache key for intersecting water with targets.
func Key(water, targets orb.Collection, dedup string) string {
	return keys.ResultKey(keys.Fingerprint(water), keys.Fingerprint(targets), dedup)
}

func (c *Cache) Get(ctx context.Context, key string) (orb.Collection, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		observability.IncResultCache("get", "error")
		c.log.WarnContext(ctx, "result cache lookup failed", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		observability.IncResultCache("get", "miss")
		return nil, false
	}
	res, err := source.DecodeGeoJSON(raw)
	if err != nil {
		observability.IncResultCache("get", "corrupt")
		c.log.WarnContext(ctx, "result cache entry unreadable", "key", key, "err", err)
		return nil, false
	}
	observability.IncResultCache("get", "hit")
	return res, true
}

func (c *Cache) Put(ctx context.Context, key string, res orb.Collection) {
	body, err := output.Encode(res)
	if err == nil {
		err = c.store.Set(ctx, key, body, c.ttl)
	}
	if err != nil {
		observability.IncResultCache("put", "error")
		c.log.WarnContext(ctx, "result cache store failed", "key", key, "err", err)
		return
	}
	observability.IncResultCache("put", "ok")
}
