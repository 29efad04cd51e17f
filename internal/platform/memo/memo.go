// Package memo memoizes pure lookups in a bounded LRU with a per-cache TTL.
// Expired or evicted entries are recomputed on the next access; concurrent
// misses for one key share a single computation.
package memo

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// InvalidateAll is the invalidation payload that clears a whole cache.
const InvalidateAll = "ALL"

type Cache[V any] struct {
	name  string
	lru   *lru.LRU[string, V]
	group singleflight.Group
	log   *zap.Logger
}

// New creates a cache holding at most capacity entries, each for ttl.
func New[V any](name string, capacity int, ttl time.Duration, log *zap.Logger) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache[V]{
		name: name,
		lru:  lru.NewLRU[string, V](capacity, nil, ttl),
		log:  log.With(zap.String("cache", name)),
	}
}

// Key builds a cache key from the exact call arguments.
func Key(parts ...any) string {
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = fmt.Sprint(p)
	}
	return strings.Join(ss, "\x1f")
}

// Do returns the cached value for key or computes, stores and returns it.
// Errors are returned to every waiter and never cached.
func (c *Cache[V]) Do(key string, fn func() (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	res, err, shared := c.group.Do(key, func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if shared {
		c.log.Debug("memo: shared computation", zap.String("key", key))
	}
	v, _ := res.(V)
	return v, err
}

func (c *Cache[V]) Invalidate(keys ...string) {
	for _, k := range keys {
		c.lru.Remove(k)
	}
}

func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Subscribe applies invalidations broadcast on subject: the payload is one key,
// or InvalidateAll (or empty) to clear the cache.
func (c *Cache[V]) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	if nc == nil || subject == "" {
		return nil, nil
	}
	return nc.Subscribe(subject, func(m *nats.Msg) {
		c.apply(string(m.Data))
	})
}

func (c *Cache[V]) apply(payload string) {
	key := strings.TrimSpace(payload)
	if key == "" || strings.EqualFold(key, InvalidateAll) {
		c.Purge()
		c.log.Info("memo: purged by broadcast")
		return
	}
	c.Invalidate(key)
}
