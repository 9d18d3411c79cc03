package linkage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/policy"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DatasetKey is the cache key of the records of one product table
func DatasetKey(table string) string {
	return shared.CacheKey(shared.CacheServicePolicyRecords, map[string]any{"table": table})
}

// ReportKey is the cache key of the full relationship report
func ReportKey() string {
	return shared.CacheKey(shared.CacheServiceReports, map[string]any{"kind": "relationships"})
}

// ContactPoliciesKey is the cache key of one contact's policy lookup
func ContactPoliciesKey(id uuid.UUID) string {
	return shared.CacheKey(shared.CacheServiceContactPolicies, map[string]any{"contact_id": id.String()})
}

// TableListingKey is the cache key of the table listing with record counts
func TableListingKey() string {
	return shared.CacheKey(shared.CacheServicePolicyTables, nil)
}

// resultStore reads and writes JSON values through a ResultCache.
// Read failures degrade to misses; entries that cannot be decoded are
// evicted. Writes are dropped when their namespace was invalidated after
// the snapshot they were computed under.
type resultStore struct {
	cache   shared.ResultCache
	gens    *Generations
	logger  *zap.Logger
	metrics *telemetry.LinkageMetrics
}

func load[T any](ctx context.Context, s resultStore, service, key string) (T, bool) {
	var zero T
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Result cache read failed, recomputing",
			zap.String("key", key),
			zap.Error(err),
		)
		s.metrics.RecordCacheLookup(ctx, service, false)
		return zero, false
	}
	if !ok {
		s.metrics.RecordCacheLookup(ctx, service, false)
		return zero, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		s.logger.Warn("Evicting undecodable cache entry",
			zap.String("key", key),
			zap.Error(fmt.Errorf("%w: %v", shared.ErrCachePoison, err)),
		)
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn("Failed to evict cache entry", zap.String("key", key), zap.Error(err))
		}
		s.metrics.RecordCacheLookup(ctx, service, false)
		return zero, false
	}

	s.metrics.RecordCacheLookup(ctx, service, true)
	return value, true
}

func (s resultStore) snapshot(service string) generation {
	return s.gens.snapshot(service)
}

func (s resultStore) store(ctx context.Context, gen generation, key string, value any, ttl time.Duration) {
	if !s.gens.current(gen) {
		s.logger.Debug("Skipping cache write after invalidation", zap.String("key", key))
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		s.logger.Warn("Result cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	// an invalidation may have run between the check and the write
	if !s.gens.current(gen) {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn("Failed to evict cache entry", zap.String("key", key), zap.Error(err))
		}
	}
}

// CachedRecordSource caches per-table datasets in front of a RecordSource.
// Concurrent misses on one table share a single fetch. Contacts and status
// writes always go to the underlying source.
type CachedRecordSource struct {
	source policy.RecordSource
	store  resultStore
	ttl    time.Duration
	group  singleflight.Group
}

var _ policy.RecordSource = (*CachedRecordSource)(nil)

// NewCachedRecordSource wraps source. A zero ttl uses the cache default.
func NewCachedRecordSource(source policy.RecordSource, cache shared.ResultCache, ttl time.Duration, logger *zap.Logger, metrics *telemetry.LinkageMetrics) *CachedRecordSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRecordSource{
		source: source,
		store:  resultStore{cache: cache, gens: NewGenerations(), logger: logger, metrics: metrics},
		ttl:    ttl,
	}
}

// FetchContacts reads contacts from the underlying source
func (s *CachedRecordSource) FetchContacts(ctx context.Context) ([]contact.Contact, error) {
	return s.source.FetchContacts(ctx)
}

// FetchPolicyRecords returns the cached dataset of a table, fetching it on a miss.
// Fetch errors are not cached.
func (s *CachedRecordSource) FetchPolicyRecords(ctx context.Context, table policy.TableMapping) ([]policy.Record, error) {
	key := DatasetKey(table.Table)
	if records, ok := load[[]policy.Record](ctx, s.store, shared.CacheServicePolicyRecords, key); ok {
		return records, nil
	}

	v, err, joined := s.group.Do(key, func() (any, error) {
		gen := s.store.snapshot(shared.CacheServicePolicyRecords)
		records, err := s.source.FetchPolicyRecords(ctx, table)
		if err != nil {
			return nil, err
		}
		s.store.store(ctx, gen, key, records, s.ttl)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	if joined {
		s.store.logger.Debug("Dataset fetch shared by concurrent callers", zap.String("table", table.Table))
	}
	return v.([]policy.Record), nil
}

// UpdateContactStatus passes through to the underlying source
func (s *CachedRecordSource) UpdateContactStatus(ctx context.Context, ids []uuid.UUID, to, precondition contact.ContactStatus) (int64, error) {
	return s.source.UpdateContactStatus(ctx, ids, to, precondition)
}
