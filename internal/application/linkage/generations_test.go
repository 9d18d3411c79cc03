package linkage

import (
	"context"
	"testing"
	"time"

	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// snapshottingCache records a generation while a prefix is being deleted
type snapshottingCache struct {
	*cache.InMemoryResultCache
	gens   *Generations
	during generation
}

func (c *snapshottingCache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	c.during = c.gens.snapshot(shared.CacheServiceReports)
	return c.InMemoryResultCache.InvalidateByPrefix(ctx, prefix)
}

func TestGenerations(t *testing.T) {
	gens := NewGenerations()

	reports := gens.snapshot(shared.CacheServiceReports)
	tablesGen := gens.snapshot(shared.CacheServicePolicyTables)
	datasets := gens.snapshot(shared.CacheServicePolicyRecords)
	assert.True(t, gens.current(reports))

	gens.bump(shared.CachePrefix(shared.CacheServiceReports))
	assert.False(t, gens.current(reports))
	assert.True(t, gens.current(tablesGen), "other namespaces are untouched")

	gens.bump(DatasetKey("autos"))
	assert.False(t, gens.current(datasets), "keys advance their own namespace")
}

func TestInvalidate_AdvancesGenerationAfterDelete(t *testing.T) {
	ctx := context.Background()
	gens := NewGenerations()
	rc := &snapshottingCache{InMemoryResultCache: cache.NewInMemoryResultCache(), gens: gens}
	defer rc.Close()

	err := invalidate(ctx, rc, gens, nil, []string{shared.CachePrefix(shared.CacheServiceReports)})
	require.NoError(t, err)

	assert.False(t, gens.current(rc.during), "a snapshot taken mid-delete is stale afterwards")
}

func TestResultStore_Store(t *testing.T) {
	ctx := context.Background()
	rc := cache.NewInMemoryResultCache()
	defer rc.Close()
	s := resultStore{cache: rc, gens: NewGenerations(), logger: zap.NewNop()}

	t.Run("current generation is written", func(t *testing.T) {
		gen := s.snapshot(shared.CacheServiceReports)
		s.store(ctx, gen, ReportKey(), map[string]int{"n": 1}, time.Minute)

		_, ok, _ := rc.Get(ctx, ReportKey())
		assert.True(t, ok)
	})

	t.Run("stale generation is dropped", func(t *testing.T) {
		require.NoError(t, rc.Invalidate(ctx, TableListingKey()))
		gen := s.snapshot(shared.CacheServicePolicyTables)
		s.gens.bump(TableListingKey())
		s.store(ctx, gen, TableListingKey(), []TableInfo{}, time.Minute)

		_, ok, _ := rc.Get(ctx, TableListingKey())
		assert.False(t, ok)
	})
}
