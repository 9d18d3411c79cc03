package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultScanBatchSize = 100
	defaultKeyNamespace  = "polizalink:"

	// PTTL reply for a key that does not exist
	redisKeyMissing = time.Duration(-2)
)

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisResultCache implements shared.ResultCache on Redis. Expiry is
// delegated to Redis key TTLs.
type RedisResultCache struct {
	client     *redis.Client
	ownsClient bool
	namespace  string
	defaultTTL time.Duration
	logger     *zap.Logger
}

// RedisOption is a functional option for configuring the cache
type RedisOption func(*RedisResultCache)

// WithNamespace sets the prefix applied to every Redis key
func WithNamespace(ns string) RedisOption {
	return func(c *RedisResultCache) {
		c.namespace = ns
	}
}

// WithRedisDefaultTTL sets the TTL used when Set is called with ttl 0
func WithRedisDefaultTTL(ttl time.Duration) RedisOption {
	return func(c *RedisResultCache) {
		c.defaultTTL = ttl
	}
}

// WithRedisLogger sets the logger for the cache
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(c *RedisResultCache) {
		c.logger = logger
	}
}

// WithClientOwnership makes Close also close the Redis client
func WithClientOwnership() RedisOption {
	return func(c *RedisResultCache) {
		c.ownsClient = true
	}
}

// NewRedisResultCache creates a cache on an existing client.
// The caller keeps ownership of the client unless WithClientOwnership is set.
func NewRedisResultCache(client *redis.Client, opts ...RedisOption) *RedisResultCache {
	c := &RedisResultCache{
		client:     client,
		namespace:  defaultKeyNamespace,
		defaultTTL: defaultResultTTL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisResultCache) redisKey(key string) string {
	return c.namespace + key
}

// Get returns the cached value for key
func (c *RedisResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("Failed to read from cache", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	c.logger.Debug("Cache hit", zap.String("key", key))
	return data, true, nil
}

// GetWithTTL reads the value and its remaining lifetime in one MULTI/EXEC,
// so the TTL belongs to the value returned
func (c *RedisResultCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	rk := c.redisKey(key)
	var (
		getCmd *redis.StringCmd
		ttlCmd *redis.DurationCmd
	)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, rk)
		ttlCmd = pipe.PTTL(ctx, rk)
		return nil
	})
	if errors.Is(getCmd.Err(), redis.Nil) {
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, 0, false, nil
	}
	if err != nil {
		c.logger.Error("Failed to read from cache", zap.String("key", key), zap.Error(err))
		return nil, 0, false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	remaining := ttlCmd.Val()
	if remaining == redisKeyMissing {
		// expired between the two commands
		remaining = 0
	}
	c.logger.Debug("Cache hit", zap.String("key", key), zap.Duration("remaining", remaining))
	return data, remaining, true, nil
}

// Set stores value under key with ttl
func (c *RedisResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in cache: %w", key, err)
	}
	return nil
}

// Invalidate removes key
func (c *RedisResultCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}

// InvalidateByPrefix scans for keys starting with prefix and deletes them
// batch by batch
func (c *RedisResultCache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	pattern := globEscaper.Replace(c.redisKey(prefix)) + "*"

	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys for prefix %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete keys for prefix %s: %w", prefix, err)
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("Invalidated cache entries by prefix",
		zap.String("prefix", prefix),
		zap.Int("removed", removed))
	return nil
}

// Close closes the client if the cache owns it
func (c *RedisResultCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

var (
	_ shared.ResultCache = (*RedisResultCache)(nil)
	_ shared.TTLReader   = (*RedisResultCache)(nil)
)
