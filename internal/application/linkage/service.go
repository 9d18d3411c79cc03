package linkage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/matching"
	"github.com/polizalink/backend/internal/domain/policy"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordCounter counts the rows of a product table
type RecordCounter interface {
	CountRecords(ctx context.Context, table policy.TableMapping) (int64, error)
}

// TTLs holds the lifetime of each cached result family.
// Zero values fall back to the cache default.
type TTLs struct {
	TableListing  time.Duration
	Dataset       time.Duration
	Report        time.Duration
	ContactLookup time.Duration
}

// DefaultTTLs returns the standard lifetimes
func DefaultTTLs() TTLs {
	return TTLs{
		TableListing:  10 * time.Minute,
		Dataset:       5 * time.Minute,
		Report:        5 * time.Minute,
		ContactLookup: 5 * time.Minute,
	}
}

// Service is the query surface of the linkage engine
type Service struct {
	source   policy.RecordSource
	contacts contact.ContactRepository
	counter  RecordCounter
	cache    shared.ResultCache
	tables   []policy.TableMapping
	scorer   *matching.Scorer
	matcher  *matching.Matcher
	promoter *PromotionWorkflow
	store    resultStore
	gens     *Generations
	ttls     TTLs
	logger   *zap.Logger
	metrics  *telemetry.LinkageMetrics
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics enables linkage metrics
func WithMetrics(metrics *telemetry.LinkageMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithScorer replaces the default similarity scorer
func WithScorer(scorer *matching.Scorer) ServiceOption {
	return func(s *Service) {
		s.scorer = scorer
	}
}

// WithTTLs sets cache lifetimes
func WithTTLs(ttls TTLs) ServiceOption {
	return func(s *Service) {
		s.ttls = ttls
	}
}

// WithGenerations shares invalidation tracking with the services that write
// to the same cache
func WithGenerations(gens *Generations) ServiceOption {
	return func(s *Service) {
		s.gens = gens
	}
}

// WithRecordCounter enables record counts in ListTables
func WithRecordCounter(counter RecordCounter) ServiceOption {
	return func(s *Service) {
		s.counter = counter
	}
}

// NewService creates the linkage service. Per-table datasets read by the
// matcher go through cache; contacts are always read fresh.
func NewService(
	source policy.RecordSource,
	contacts contact.ContactRepository,
	cache shared.ResultCache,
	tables []policy.TableMapping,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		source:   source,
		contacts: contacts,
		cache:    cache,
		tables:   tables,
		ttls:     DefaultTTLs(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = matching.NewScorer()
	}
	if s.gens == nil {
		s.gens = NewGenerations()
	}

	s.store = resultStore{cache: cache, gens: s.gens, logger: s.logger, metrics: s.metrics}
	cached := NewCachedRecordSource(source, cache, s.ttls.Dataset, s.logger, s.metrics)
	cached.store.gens = s.gens
	s.matcher = matching.NewMatcher(cached,
		matching.WithScorer(s.scorer),
		matching.WithMatcherLogger(s.logger.Named("matcher")),
		matching.WithTableHook(tableSpanHook(s.metrics)),
	)
	s.promoter = NewPromotionWorkflow(source, WithPromotionLogger(s.logger.Named("promotion")))
	return s
}

// Tables returns the configured table mappings
func (s *Service) Tables() []policy.TableMapping {
	return s.tables
}

// ==================== Relationships ====================

// ComputeRelationships links every contact to the policies found across all
// configured tables. Unreadable tables are listed in TableErrors and never
// fail the call. Complete results are cached; partial ones are not.
func (s *Service) ComputeRelationships(ctx context.Context) (*RelationshipsResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "linkage", "compute_relationships")
	defer span.End()
	start := time.Now()

	key := ReportKey()
	if cached, ok := load[RelationshipsResult](ctx, s.store, shared.CacheServiceReports, key); ok {
		telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, true)
		s.metrics.RecordCompute(ctx, time.Since(start), true)
		return &cached, nil
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, false)

	gen := s.store.snapshot(shared.CacheServiceReports)
	result, err := s.compute(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTableCount, len(s.tables),
		telemetry.SpanAttrCandidates, result.Summary.TotalMatches,
		telemetry.SpanAttrFailedTables, len(result.TableErrors),
	)

	if !result.Partial() {
		s.store.store(ctx, gen, key, result, s.ttls.Report)
	}
	s.metrics.RecordCompute(ctx, time.Since(start), false)
	return result, nil
}

func (s *Service) compute(ctx context.Context) (*RelationshipsResult, error) {
	contacts, err := s.source.FetchContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}
	return s.link(ctx, contacts), nil
}

func (s *Service) link(ctx context.Context, contacts []contact.Contact) *RelationshipsResult {
	run := s.matcher.Compute(ctx, contacts, s.tables)
	recordCandidateMetrics(ctx, s.metrics, run.Candidates)

	agg := matching.Aggregate(run.Candidates, contacts, policy.TableNames(s.tables))
	if len(run.TableErrors) > 0 {
		s.logger.Warn("Relationships computed with missing tables",
			zap.Strings("failed_tables", run.FailedTables()),
			zap.Int("matches", agg.Summary.TotalMatches),
		)
	}
	return &RelationshipsResult{
		Summary:       agg.Summary,
		Relationships: agg.Relationships,
		TableErrors:   tableErrorMessages(run.TableErrors),
	}
}

// GetPoliciesForContact returns the policies linked to one contact.
// It returns shared.ErrNotFound when the contact does not exist.
func (s *Service) GetPoliciesForContact(ctx context.Context, id uuid.UUID) (*ContactPolicies, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "linkage", "get_policies_for_contact",
		telemetry.WithAttribute(telemetry.SpanAttrContactID, id.String()),
	)
	defer span.End()

	key := ContactPoliciesKey(id)
	if cached, ok := load[ContactPolicies](ctx, s.store, shared.CacheServiceContactPolicies, key); ok {
		telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, true)
		return &cached, nil
	}

	gen := s.store.snapshot(shared.CacheServiceContactPolicies)
	c, err := s.contacts.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	linked := s.link(ctx, []contact.Contact{*c})
	out := &ContactPolicies{
		Contact:      *c,
		Policies:     []matching.PolicySummary{},
		TotalPremium: decimal.Zero,
		TableErrors:  linked.TableErrors,
	}
	for _, rel := range linked.Relationships {
		if rel.Contact.ID != id {
			continue
		}
		out.Policies = append(out.Policies, rel.Policies...)
		out.TotalPremium = out.TotalPremium.Add(rel.TotalPremium)
	}
	out.TotalPolicies = len(out.Policies)

	if len(out.TableErrors) == 0 {
		s.store.store(ctx, gen, key, out, s.ttls.ContactLookup)
	}
	return out, nil
}

// ==================== Promotion ====================

// PromoteClientStatuses promotes every prospect that owns at least one
// policy to client and returns the resulting status counts. Relationships
// are recomputed from current contact data rather than read from the
// report cache.
func (s *Service) PromoteClientStatuses(ctx context.Context) (*PromotionOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "linkage", "promote_client_statuses")
	defer span.End()

	result, err := s.compute(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	promoted, err := s.promoter.Promote(ctx, result.Relationships)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrPromoted, promoted.AffectedCount)
	s.metrics.RecordPromotions(ctx, promoted.AffectedCount)

	if promoted.AffectedCount > 0 {
		// cached reports embed contact status
		if err := invalidate(ctx, s.cache, s.gens, nil, []string{
			shared.CachePrefix(shared.CacheServiceReports),
			shared.CachePrefix(shared.CacheServiceContactPolicies),
		}); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	stats, err := s.contacts.CountByStatus(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to count contacts by status: %w", err)
	}

	return &PromotionOutcome{
		UpdatedCount: promoted.AffectedCount,
		NewStats:     stats,
		UpdatedIDs:   promoted.PromotedContactIDs,
	}, nil
}

// ==================== Table listing ====================

// ListTables returns the configured tables with their record counts.
// Listings with a failed count are not cached.
func (s *Service) ListTables(ctx context.Context) ([]TableInfo, error) {
	key := TableListingKey()
	if cached, ok := load[[]TableInfo](ctx, s.store, shared.CacheServicePolicyTables, key); ok {
		return cached, nil
	}

	gen := s.store.snapshot(shared.CacheServicePolicyTables)
	infos := make([]TableInfo, len(s.tables))
	complete := true
	for i, m := range s.tables {
		infos[i] = TableInfo{Table: m.Table, LineOfBusiness: m.LineOfBusiness}
		if s.counter == nil {
			continue
		}
		n, err := s.counter.CountRecords(ctx, m)
		if err != nil {
			s.logger.Warn("Failed to count policy records",
				zap.String("table", m.Table),
				zap.Error(err),
			)
			infos[i].Error = err.Error()
			complete = false
			continue
		}
		infos[i].RecordCount = n
	}

	if complete {
		s.store.store(ctx, gen, key, infos, s.ttls.TableListing)
	}
	return infos, nil
}

// invalidate drops keys and prefixes and joins every failure. Their
// namespaces are advanced on both sides of the delete, so a result read
// from entries that were still present is never written back.
func invalidate(ctx context.Context, cache shared.ResultCache, gens *Generations, keys, prefixes []string) error {
	gens.bump(keys...)
	gens.bump(prefixes...)
	defer func() {
		gens.bump(keys...)
		gens.bump(prefixes...)
	}()

	var errs []error
	for _, key := range keys {
		if err := cache.Invalidate(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("key %s: %w", key, err))
		}
	}
	for _, prefix := range prefixes {
		if err := cache.InvalidateByPrefix(ctx, prefix); err != nil {
			errs = append(errs, fmt.Errorf("prefix %s: %w", prefix, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}
