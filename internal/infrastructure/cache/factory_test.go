package cache

import (
	"testing"
	"time"

	"github.com/polizalink/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// unreachableRedis points at a port nothing listens on
var unreachableRedis = config.RedisConfig{Host: "127.0.0.1", Port: 1}

func testCacheConfig(backend string) config.CacheConfig {
	return config.CacheConfig{
		Backend:          backend,
		DatasetTTL:       5 * time.Minute,
		CleanupInterval:  time.Minute,
		InvalidationChan: "test:invalidate",
	}
}

func TestResultCacheFactory_CreateCache(t *testing.T) {
	t.Run("memory backend", func(t *testing.T) {
		f := NewResultCacheFactory(testCacheConfig(BackendMemory), unreachableRedis)
		c, err := f.CreateCache()
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryResultCache{}, c)
	})

	t.Run("empty backend defaults to memory", func(t *testing.T) {
		f := NewResultCacheFactory(testCacheConfig(""), unreachableRedis)
		c, err := f.CreateCache()
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryResultCache{}, c)
	})

	t.Run("unknown backend", func(t *testing.T) {
		f := NewResultCacheFactory(testCacheConfig("memcached"), unreachableRedis)
		_, err := f.CreateCache()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown cache backend")
	})

	t.Run("falls back to memory when redis is unreachable", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		f := NewResultCacheFactory(testCacheConfig(BackendTiered), unreachableRedis,
			WithFactoryLogger(zap.New(core)))

		c, err := f.CreateCache()
		require.NoError(t, err)
		defer c.Close()

		assert.IsType(t, &InMemoryResultCache{}, c)
		assert.Equal(t, 1, logs.FilterMessageSnippet("falling back").Len())
	})

	t.Run("fails without fallback", func(t *testing.T) {
		f := NewResultCacheFactory(testCacheConfig(BackendRedis), unreachableRedis,
			WithInMemoryFallback(false))

		_, err := f.CreateCache()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Redis required")
	})
}
