package linkage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/polizalink/backend/internal/domain/policy"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PolicyRecordService mutates product tables. Every successful write
// invalidates the affected cache entries before returning, so the next
// read recomputes from the store.
type PolicyRecordService struct {
	writer policy.RecordWriter
	cache  shared.ResultCache
	tables []policy.TableMapping
	gens   *Generations
	logger *zap.Logger
}

// PolicyRecordOption configures a PolicyRecordService
type PolicyRecordOption func(*PolicyRecordService)

// WithRecordLogger sets the logger
func WithRecordLogger(logger *zap.Logger) PolicyRecordOption {
	return func(s *PolicyRecordService) {
		s.logger = logger
	}
}

// WithRecordGenerations shares invalidation tracking with the Service that
// reads from the same cache
func WithRecordGenerations(gens *Generations) PolicyRecordOption {
	return func(s *PolicyRecordService) {
		s.gens = gens
	}
}

// NewPolicyRecordService creates a PolicyRecordService
func NewPolicyRecordService(writer policy.RecordWriter, cache shared.ResultCache, tables []policy.TableMapping, opts ...PolicyRecordOption) *PolicyRecordService {
	s := &PolicyRecordService{
		writer: writer,
		cache:  cache,
		tables: tables,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gens == nil {
		s.gens = NewGenerations()
	}
	return s
}

// Create adds a record to table.
// It returns shared.ErrAlreadyExists when the policy number is taken.
func (s *PolicyRecordService) Create(ctx context.Context, table string, in CreateRecordInput) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "policy_records", "create",
		telemetry.WithAttribute(telemetry.SpanAttrTable, table),
	)
	defer span.End()

	m, err := s.mapping(table)
	if err != nil {
		return err
	}
	rec := in.toRecord(m)
	if err := validateRecord(rec); err != nil {
		return err
	}

	if err := s.writer.CreateRecord(ctx, m, rec); err != nil {
		telemetry.RecordError(span, err)
		return writeError("create policy record", err)
	}
	s.logger.Info("Policy record created",
		zap.String("table", m.Table),
		zap.String("policy_number", rec.PolicyNumber),
	)
	return s.invalidateTable(ctx, m.Table)
}

// Update overwrites the record identified by policyNumber.
// It returns shared.ErrNotFound when no such record exists.
func (s *PolicyRecordService) Update(ctx context.Context, table, policyNumber string, in UpdateRecordInput) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "policy_records", "update",
		telemetry.WithAttribute(telemetry.SpanAttrTable, table),
	)
	defer span.End()

	m, err := s.mapping(table)
	if err != nil {
		return err
	}
	rec := in.toRecord(m, strings.TrimSpace(policyNumber))
	if err := validateRecord(rec); err != nil {
		return err
	}

	if err := s.writer.UpdateRecord(ctx, m, rec.PolicyNumber, rec); err != nil {
		telemetry.RecordError(span, err)
		return writeError("update policy record", err)
	}
	s.logger.Info("Policy record updated",
		zap.String("table", m.Table),
		zap.String("policy_number", rec.PolicyNumber),
	)
	return s.invalidateTable(ctx, m.Table)
}

// Delete removes the record identified by policyNumber.
// It returns shared.ErrNotFound when no such record exists.
func (s *PolicyRecordService) Delete(ctx context.Context, table, policyNumber string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "policy_records", "delete",
		telemetry.WithAttribute(telemetry.SpanAttrTable, table),
	)
	defer span.End()

	m, err := s.mapping(table)
	if err != nil {
		return err
	}
	policyNumber = strings.TrimSpace(policyNumber)
	if policyNumber == "" {
		return fmt.Errorf("%w: policy number is required", shared.ErrInvalidInput)
	}

	if err := s.writer.DeleteRecord(ctx, m, policyNumber); err != nil {
		telemetry.RecordError(span, err)
		return writeError("delete policy record", err)
	}
	s.logger.Info("Policy record deleted",
		zap.String("table", m.Table),
		zap.String("policy_number", policyNumber),
	)
	return s.invalidateTable(ctx, m.Table)
}

func (s *PolicyRecordService) mapping(table string) (policy.TableMapping, error) {
	m, ok := policy.FindTable(s.tables, table)
	if !ok {
		return policy.TableMapping{}, fmt.Errorf("%w: unknown policy table %q", shared.ErrInvalidInput, table)
	}
	return m, nil
}

// invalidateTable drops the table dataset and everything derived from it.
// A failure here is returned even though the write succeeded.
func (s *PolicyRecordService) invalidateTable(ctx context.Context, table string) error {
	err := invalidate(ctx, s.cache, s.gens,
		[]string{DatasetKey(table)},
		[]string{
			shared.CachePrefix(shared.CacheServiceReports),
			shared.CachePrefix(shared.CacheServiceContactPolicies),
			shared.CachePrefix(shared.CacheServicePolicyTables),
		},
	)
	if err != nil {
		s.logger.Error("Cache invalidation after write failed",
			zap.String("table", table),
			zap.Error(err),
		)
	}
	return err
}

func validateRecord(rec policy.Record) error {
	if rec.PolicyNumber == "" {
		return fmt.Errorf("%w: policy number is required", shared.ErrInvalidInput)
	}
	if !rec.HasName() {
		return fmt.Errorf("%w: policyholder name is required", shared.ErrInvalidInput)
	}
	if rec.Premium.IsNegative() {
		return fmt.Errorf("%w: premium cannot be negative", shared.ErrInvalidInput)
	}
	return nil
}

func writeError(op string, err error) error {
	if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrAlreadyExists) {
		return err
	}
	return shared.NewUpstreamWriteError(op, err)
}
