package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const defaultL1MaxTTL = 30 * time.Second

// TieredStats holds per-tier counters
type TieredStats struct {
	L1Hits   int64 `json:"l1_hits"`
	L2Hits   int64 `json:"l2_hits"`
	Misses   int64 `json:"misses"`
	L2Errors int64 `json:"l2_errors"`
	L1       Stats `json:"l1"`
}

// TieredResultCache reads through a local L1 into a shared L2.
// Writes and invalidations go to both tiers, and invalidations are
// broadcast so peers can drop their L1 copies.
type TieredResultCache struct {
	l1          *InMemoryResultCache
	l2          shared.ResultCache
	invalidator shared.CacheInvalidator
	l1MaxTTL    time.Duration
	instanceID  string
	logger      *zap.Logger

	l1Hits   int64
	l2Hits   int64
	misses   int64
	l2Errors int64
}

// TieredOption is a functional option for configuring the tiered cache
type TieredOption func(*TieredResultCache)

// WithInvalidator enables cross-instance invalidation
func WithInvalidator(inv shared.CacheInvalidator) TieredOption {
	return func(c *TieredResultCache) {
		c.invalidator = inv
	}
}

// WithL1MaxTTL caps how long an entry stays in the local tier
func WithL1MaxTTL(ttl time.Duration) TieredOption {
	return func(c *TieredResultCache) {
		c.l1MaxTTL = ttl
	}
}

// WithInstanceID sets the identifier stamped on published messages
func WithInstanceID(id string) TieredOption {
	return func(c *TieredResultCache) {
		c.instanceID = id
	}
}

// WithTieredLogger sets the logger for the cache
func WithTieredLogger(logger *zap.Logger) TieredOption {
	return func(c *TieredResultCache) {
		c.logger = logger
	}
}

// NewTieredResultCache combines l1 and l2
func NewTieredResultCache(l1 *InMemoryResultCache, l2 shared.ResultCache, opts ...TieredOption) *TieredResultCache {
	c := &TieredResultCache{
		l1:         l1,
		l2:         l2,
		l1MaxTTL:   defaultL1MaxTTL,
		instanceID: uuid.NewString(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get checks L1, then L2. An L2 hit is copied into L1 for at most the
// entry's remaining L2 lifetime. L2 errors are logged and reported as a miss.
func (c *TieredResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, ok, _ := c.l1.Get(ctx, key); ok {
		atomic.AddInt64(&c.l1Hits, 1)
		return value, true, nil
	}

	value, remaining, ok, err := c.readL2(ctx, key)
	if err != nil {
		atomic.AddInt64(&c.l2Errors, 1)
		atomic.AddInt64(&c.misses, 1)
		c.logger.Warn("L2 cache read failed, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		return nil, false, nil
	}
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}

	atomic.AddInt64(&c.l2Hits, 1)
	if ttl := c.promotionTTL(remaining); ttl > 0 {
		_ = c.l1.Set(ctx, key, value, ttl)
	}
	return value, true, nil
}

// readL2 reads key from L2 with its remaining lifetime when L2 can report
// it. A negative remaining lifetime means unknown or unbounded.
func (c *TieredResultCache) readL2(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	if reader, ok := c.l2.(shared.TTLReader); ok {
		return reader.GetWithTTL(ctx, key)
	}
	value, ok, err := c.l2.Get(ctx, key)
	return value, -1, ok, err
}

// promotionTTL is the L1 lifetime of an entry read from L2. Zero means the
// entry is about to expire and is not copied.
func (c *TieredResultCache) promotionTTL(remaining time.Duration) time.Duration {
	if remaining < 0 {
		return c.l1MaxTTL
	}
	return min(remaining, c.l1MaxTTL)
}

// Set writes to L2 first, then L1
func (c *TieredResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, key, value, c.localTTL(ttl))
}

func (c *TieredResultCache) localTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1MaxTTL {
		return c.l1MaxTTL
	}
	return ttl
}

// Invalidate removes key from both tiers and notifies peers
func (c *TieredResultCache) Invalidate(ctx context.Context, key string) error {
	_ = c.l1.Invalidate(ctx, key)
	if err := c.l2.Invalidate(ctx, key); err != nil {
		return err
	}
	c.publish(ctx, shared.CacheUpdateActionKey, key)
	return nil
}

// InvalidateByPrefix removes matching keys from both tiers and notifies peers
func (c *TieredResultCache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	_ = c.l1.InvalidateByPrefix(ctx, prefix)
	if err := c.l2.InvalidateByPrefix(ctx, prefix); err != nil {
		return err
	}
	c.publish(ctx, shared.CacheUpdateActionPrefix, prefix)
	return nil
}

func (c *TieredResultCache) publish(ctx context.Context, action shared.CacheUpdateAction, target string) {
	if c.invalidator == nil {
		return
	}
	msg := shared.CacheUpdateMessage{
		Action: action,
		Target: target,
		Source: c.instanceID,
	}
	if err := c.invalidator.Publish(ctx, msg); err != nil {
		c.logger.Warn("Failed to publish cache invalidation",
			zap.String("action", string(action)),
			zap.String("target", target),
			zap.Error(err))
	}
}

// StartSync applies peer invalidations to L1. It blocks until ctx is
// cancelled, so callers run it in a goroutine.
func (c *TieredResultCache) StartSync(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, c.HandleUpdate)
}

// HandleUpdate drops L1 entries named by a peer message. Messages this
// instance published are ignored.
func (c *TieredResultCache) HandleUpdate(msg shared.CacheUpdateMessage) {
	if msg.Source == c.instanceID {
		return
	}
	ctx := context.Background()
	switch msg.Action {
	case shared.CacheUpdateActionKey:
		_ = c.l1.Invalidate(ctx, msg.Target)
	case shared.CacheUpdateActionPrefix:
		_ = c.l1.InvalidateByPrefix(ctx, msg.Target)
	default:
		c.logger.Warn("Unknown cache update action", zap.String("action", string(msg.Action)))
		return
	}
	c.logger.Debug("Applied peer cache invalidation",
		zap.String("action", string(msg.Action)),
		zap.String("target", msg.Target),
		zap.String("source", msg.Source))
}

// Stats returns tier counters
func (c *TieredResultCache) Stats() TieredStats {
	return TieredStats{
		L1Hits:   atomic.LoadInt64(&c.l1Hits),
		L2Hits:   atomic.LoadInt64(&c.l2Hits),
		Misses:   atomic.LoadInt64(&c.misses),
		L2Errors: atomic.LoadInt64(&c.l2Errors),
		L1:       c.l1.Stats(),
	}
}

// Close closes the invalidator and both tiers
func (c *TieredResultCache) Close() error {
	var firstErr error
	if c.invalidator != nil {
		if err := c.invalidator.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.l1.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.l2.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var _ shared.ResultCache = (*TieredResultCache)(nil)
