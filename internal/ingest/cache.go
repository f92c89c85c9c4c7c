package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	"github.com/couchcryptid/traffic-incident-etl/internal/observability"
)

// TableLoader builds a table from a set of source files.
type TableLoader interface {
	Load(ctx context.Context, paths []string) (*domain.Table, error)
}

// LoadHook is called once for every freshly built table, before it is
// returned to any caller. Its context expires after DefaultHookTimeout.
type LoadHook func(ctx context.Context, table *domain.Table)

// DefaultHookTimeout bounds how long a LoadHook may hold up a load.
const DefaultHookTimeout = 10 * time.Second

// CachedLoader memoizes tables by the fingerprint of their source files.
// Concurrent requests for the same uncached fingerprint share one load.
type CachedLoader struct {
	inner       TableLoader
	cache       *lruCache[*domain.Table]
	group       singleflight.Group
	hook        LoadHook
	hookTimeout time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewCachedLoader wraps inner with an LRU of maxEntries tables. hook may be nil.
func NewCachedLoader(inner TableLoader, maxEntries int, hook LoadHook, logger *slog.Logger, metrics *observability.Metrics) *CachedLoader {
	return &CachedLoader{
		inner:       inner,
		cache:       newLRUCache[*domain.Table](maxEntries),
		hook:        hook,
		hookTimeout: DefaultHookTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Load returns the table for paths, building it only when the file set has
// changed since it was last loaded. Failed loads are not cached.
func (c *CachedLoader) Load(ctx context.Context, paths []string) (*domain.Table, error) {
	key := Fingerprint(paths)
	if table, ok := c.cache.get(key); ok {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return table, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	v, err, shared := c.group.Do(key, func() (any, error) {
		if table, ok := c.cache.get(key); ok {
			return table, nil
		}
		// The load is shared, so one caller's cancellation must not fail the rest.
		loadCtx := context.WithoutCancel(ctx)
		table, err := c.inner.Load(loadCtx, paths)
		if err != nil {
			return nil, err
		}
		table.Fingerprint = key
		if c.hook != nil {
			c.runHook(loadCtx, table)
		}
		c.cache.put(key, table)
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight table load", "fingerprint", key)
	}
	return v.(*domain.Table), nil
}

func (c *CachedLoader) runHook(ctx context.Context, table *domain.Table) {
	hookCtx, cancel := context.WithTimeout(ctx, c.hookTimeout)
	defer cancel()
	start := time.Now()
	c.hook(hookCtx, table)
	if hookCtx.Err() != nil {
		c.logger.Warn("load hook hit its deadline", "fingerprint", table.Fingerprint, "elapsed", time.Since(start))
	}
}

// lruCache is a small thread-safe LRU cache keyed by string.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
