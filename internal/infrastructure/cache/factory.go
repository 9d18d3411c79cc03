package cache

import (
	"fmt"

	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Cache backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTiered = "tiered"
)

// ResultCacheFactory creates the result cache selected by configuration
type ResultCacheFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*ResultCacheFactory)

// WithFactoryLogger sets the logger passed to the caches the factory creates
func WithFactoryLogger(logger *zap.Logger) FactoryOption {
	return func(f *ResultCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory
// cache when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *ResultCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewResultCacheFactory creates a new factory
func NewResultCacheFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...FactoryOption) *ResultCacheFactory {
	f := &ResultCacheFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateInMemoryCache creates a process-local cache.
// In-memory caches are not shared, so writes on one instance are not
// seen by another until the entry expires.
func (f *ResultCacheFactory) CreateInMemoryCache() *InMemoryResultCache {
	opts := []InMemoryOption{
		WithDefaultTTL(f.cacheConfig.DatasetTTL),
		WithInMemoryLogger(f.logger.Named("l1")),
	}
	if f.cacheConfig.CleanupInterval > 0 {
		opts = append(opts, WithCleanupInterval(f.cacheConfig.CleanupInterval))
	}
	return NewInMemoryResultCache(opts...)
}

// CreateCache creates the configured backend. With fallback enabled a
// Redis connection failure degrades to the in-memory cache.
func (f *ResultCacheFactory) CreateCache() (shared.ResultCache, error) {
	switch f.cacheConfig.Backend {
	case "", BackendMemory:
		f.logger.Info("Using in-memory result cache")
		return f.CreateInMemoryCache(), nil
	case BackendRedis, BackendTiered:
	default:
		return nil, fmt.Errorf("unknown cache backend %q", f.cacheConfig.Backend)
	}

	client, err := NewRedisClient(f.redisConfig)
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("Redis required for %s cache but unavailable: %w", f.cacheConfig.Backend, err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory result cache. "+
			"Cache invalidations will not reach other instances.",
			zap.Error(err),
		)
		return f.CreateInMemoryCache(), nil
	}

	l2 := NewRedisResultCache(client,
		WithClientOwnership(),
		WithRedisDefaultTTL(f.cacheConfig.DatasetTTL),
		WithRedisLogger(f.logger.Named("redis")),
	)
	if f.cacheConfig.Backend == BackendRedis {
		f.logger.Info("Using Redis result cache", zap.String("addr", f.redisConfig.Addr()))
		return l2, nil
	}

	invalidator := NewRedisInvalidator(client,
		WithInvalidatorChannel(f.cacheConfig.InvalidationChan),
		WithInvalidatorLogger(f.logger.Named("invalidator")),
	)
	f.logger.Info("Using tiered result cache",
		zap.String("addr", f.redisConfig.Addr()),
		zap.String("channel", f.cacheConfig.InvalidationChan))
	return NewTieredResultCache(f.CreateInMemoryCache(), l2,
		WithInvalidator(invalidator),
		WithTieredLogger(f.logger.Named("tiered")),
	), nil
}
