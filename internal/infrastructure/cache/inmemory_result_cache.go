package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polizalink/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 30 * time.Second
	defaultResultTTL       = 5 * time.Minute
)

// Stats is a snapshot of cache counters
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int64 `json:"entries"`
}

// InMemoryResultCache implements shared.ResultCache in process memory.
// It is the L1 tier of the tiered cache and the whole cache in
// single-instance deployments.
type InMemoryResultCache struct {
	entries         sync.Map // map[string]*shared.CacheEntry
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *zap.Logger
	stopCh          chan struct{}
	stopped         int32

	hits   int64
	misses int64
}

// InMemoryOption is a functional option for configuring the cache
type InMemoryOption func(*InMemoryResultCache)

// WithDefaultTTL sets the TTL used when Set is called with ttl 0
func WithDefaultTTL(ttl time.Duration) InMemoryOption {
	return func(c *InMemoryResultCache) {
		c.defaultTTL = ttl
	}
}

// WithCleanupInterval sets how often expired entries are swept
func WithCleanupInterval(interval time.Duration) InMemoryOption {
	return func(c *InMemoryResultCache) {
		c.cleanupInterval = interval
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) InMemoryOption {
	return func(c *InMemoryResultCache) {
		c.now = now
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryOption {
	return func(c *InMemoryResultCache) {
		c.logger = logger
	}
}

// NewInMemoryResultCache creates the cache and starts its cleanup loop.
// Close stops the loop.
func NewInMemoryResultCache(opts ...InMemoryOption) *InMemoryResultCache {
	c := &InMemoryResultCache{
		defaultTTL:      defaultResultTTL,
		cleanupInterval: defaultCleanupInterval,
		now:             time.Now,
		logger:          zap.NewNop(),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()

	return c
}

// Get returns the cached value for key
func (c *InMemoryResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, _, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// GetWithTTL returns the cached value for key and its remaining lifetime
func (c *InMemoryResultCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	entry, now, ok := c.lookup(key)
	if !ok {
		return nil, 0, false, nil
	}
	return entry.Value, entry.Remaining(now), true, nil
}

// lookup returns the live entry for key and the time it was checked at
func (c *InMemoryResultCache) lookup(key string) (*shared.CacheEntry, time.Time, bool) {
	now := c.now()
	if value, ok := c.entries.Load(key); ok {
		entry := value.(*shared.CacheEntry)
		if !entry.Expired(now) {
			atomic.AddInt64(&c.hits, 1)
			c.logger.Debug("L1 cache hit", zap.String("key", key))
			return entry, now, true
		}
		c.entries.CompareAndDelete(key, value)
	}

	atomic.AddInt64(&c.misses, 1)
	c.logger.Debug("L1 cache miss", zap.String("key", key))
	return nil, now, false
}

// Set stores a copy of value under key
func (c *InMemoryResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.entries.Store(key, &shared.CacheEntry{
		Key:       key,
		Value:     stored,
		CreatedAt: c.now(),
		TTL:       ttl,
	})
	c.logger.Debug("Cached result in L1", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// Invalidate removes key
func (c *InMemoryResultCache) Invalidate(ctx context.Context, key string) error {
	c.entries.Delete(key)
	return nil
}

// InvalidateByPrefix removes every key starting with prefix
func (c *InMemoryResultCache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	removed := 0
	c.entries.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.entries.Delete(key)
			removed++
		}
		return true
	})
	c.logger.Debug("Invalidated L1 entries by prefix",
		zap.String("prefix", prefix),
		zap.Int("removed", removed))
	return nil
}

// Close stops the cleanup loop
func (c *InMemoryResultCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// Stats returns the hit and miss counters and the number of stored entries
func (c *InMemoryResultCache) Stats() Stats {
	var n int64
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: n,
	}
}

func (c *InMemoryResultCache) cleanupExpired() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("Panic in cache cleanup", zap.Any("panic", r))
					}
				}()
				c.sweep()
			}()
		}
	}
}

// sweep removes expired entries and returns how many were removed
func (c *InMemoryResultCache) sweep() int {
	now := c.now()
	removed := 0
	c.entries.Range(func(key, value any) bool {
		if value.(*shared.CacheEntry).Expired(now) {
			c.entries.CompareAndDelete(key, value)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Cleaned up expired L1 cache entries", zap.Int("removed", removed))
	}
	return removed
}

var (
	_ shared.ResultCache = (*InMemoryResultCache)(nil)
	_ shared.TTLReader   = (*InMemoryResultCache)(nil)
)
