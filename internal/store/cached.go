package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"gridwatch/internal/filter"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
)

// Cache is the byte cache behind Cached.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{rdb: redis.NewClient(opt)}, nil
}

// Client exposes the underlying connection so other components can share it.
func (c *RedisCache) Client() *redis.Client { return c.rdb }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// LocalCache is an in-process Cache for single-instance deployments.
type LocalCache struct {
	mu    sync.Mutex
	items map[string]localItem
	now   func() time.Time
}

type localItem struct {
	val     []byte
	expires time.Time
}

func NewLocalCache() *LocalCache {
	return &LocalCache{items: map[string]localItem{}, now: time.Now}
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !it.expires.IsZero() && c.now().After(it.expires) {
		delete(c.items, key)
		return nil, false, nil
	}
	return it.val, true, nil
}

func (c *LocalCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := localItem{val: val}
	if ttl > 0 {
		it.expires = c.now().Add(ttl)
	}
	c.items[key] = it
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

// Cached wraps a Store and serves small reference collections from a
// cache. The whole collection is cached under one key and filtered in
// process; writes through Cached drop the key.
type Cached struct {
	Store
	cache       Cache
	ttl         time.Duration
	collections map[string]bool
}

const cachePrefix = "gridwatch:collection:"

func NewCached(s Store, c Cache, ttl time.Duration, collections ...string) *Cached {
	set := make(map[string]bool, len(collections))
	for _, name := range collections {
		set[name] = true
	}
	return &Cached{Store: s, cache: c, ttl: ttl, collections: set}
}

func (c *Cached) load(ctx context.Context, collection string) ([]model.Record, error) {
	key := cachePrefix + collection
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logger.Warnf(ctx, "reference cache read %s: %v", collection, err)
	}
	if ok {
		var recs []model.Record
		if err := json.Unmarshal(raw, &recs); err == nil {
			metrics.CacheLookups.WithLabelValues(collection, "hit").Inc()
			return recs, nil
		}
	}
	metrics.CacheLookups.WithLabelValues(collection, "miss").Inc()
	recs, err := All(ctx, c.Store, collection)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(recs); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			logger.Warnf(ctx, "reference cache write %s: %v", collection, err)
		}
	}
	return recs, nil
}

func (c *Cached) invalidate(ctx context.Context, collection string) {
	if err := c.cache.Del(ctx, cachePrefix+collection); err != nil {
		logger.Warnf(ctx, "reference cache invalidate %s: %v", collection, err)
	}
}

func (c *Cached) Query(ctx context.Context, collection string, q filter.Query) ([]model.Record, error) {
	if !c.collections[collection] {
		return c.Store.Query(ctx, collection, q)
	}
	recs, err := c.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	page, _ := filter.Apply(recs, q)
	return page, nil
}

func (c *Cached) Count(ctx context.Context, collection string, where []filter.Condition) (int, error) {
	if !c.collections[collection] {
		return c.Store.Count(ctx, collection, where)
	}
	recs, err := c.load(ctx, collection)
	if err != nil {
		return 0, err
	}
	_, total := filter.Apply(recs, filter.Query{Where: where})
	return total, nil
}

func (c *Cached) Get(ctx context.Context, collection, id string) (model.Record, error) {
	if !c.collections[collection] {
		return c.Store.Get(ctx, collection, id)
	}
	recs, err := c.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (c *Cached) Put(ctx context.Context, collection string, r model.Record) (model.Record, error) {
	out, err := c.Store.Put(ctx, collection, r)
	if err == nil && c.collections[collection] {
		c.invalidate(ctx, collection)
	}
	return out, err
}

func (c *Cached) Delete(ctx context.Context, collection, id string) error {
	err := c.Store.Delete(ctx, collection, id)
	if err == nil && c.collections[collection] {
		c.invalidate(ctx, collection)
	}
	return err
}
