package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor receives a nil meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// LinkageMetrics records match, promotion, and cache activity.
type LinkageMetrics struct {
	candidates      *Counter
	tableFailures   *Counter
	promotions      *Counter
	cacheLookups    *Counter
	computeDuration *Histogram
	tableDuration   *Histogram
}

// NewLinkageMetrics creates the linkage instruments on meter
func NewLinkageMetrics(meter metric.Meter) (*LinkageMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LinkageMetrics{}
	var err error

	if m.candidates, err = NewCounter(meter,
		"polizalink_match_candidates_total",
		"Match candidates produced, by table and match type",
		"{candidates}"); err != nil {
		return nil, err
	}
	if m.tableFailures, err = NewCounter(meter,
		"polizalink_table_fetch_failures_total",
		"Product tables skipped because their read failed",
		"{tables}"); err != nil {
		return nil, err
	}
	if m.promotions, err = NewCounter(meter,
		"polizalink_contacts_promoted_total",
		"Contacts moved from prospect to client",
		"{contacts}"); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = NewCounter(meter,
		"polizalink_cache_lookups_total",
		"Result cache lookups, by service and result",
		"{lookups}"); err != nil {
		return nil, err
	}
	if m.computeDuration, err = NewHistogram(meter,
		"polizalink_compute_duration_seconds",
		"Duration of a full cross-table relationship computation",
		"s", ComputeDurationBuckets); err != nil {
		return nil, err
	}
	if m.tableDuration, err = NewHistogram(meter,
		"polizalink_table_match_duration_seconds",
		"Duration of fetching and matching one product table",
		"s", TableDurationBuckets); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCandidates adds n candidates for table and match type
func (m *LinkageMetrics) RecordCandidates(ctx context.Context, table, matchType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.candidates.Add(ctx, int64(n), AttrTable.String(table), AttrMatchType.String(matchType))
}

// RecordTable records the duration of one table and whether it failed
func (m *LinkageMetrics) RecordTable(ctx context.Context, table string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.tableFailures.Inc(ctx, AttrTable.String(table))
	}
	m.tableDuration.RecordDuration(ctx, d, AttrTable.String(table), AttrOutcome.String(outcome))
}

// RecordCompute records the duration of a full computation
func (m *LinkageMetrics) RecordCompute(ctx context.Context, d time.Duration, cached bool) {
	if m == nil {
		return
	}
	m.computeDuration.RecordDuration(ctx, d, attribute.Bool("cached", cached))
}

// RecordPromotions adds n promoted contacts
func (m *LinkageMetrics) RecordPromotions(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.promotions.Add(ctx, n)
}

// RecordCacheLookup counts a hit or miss for a cache service namespace
func (m *LinkageMetrics) RecordCacheLookup(ctx context.Context, service string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(ctx, AttrService.String(service), AttrResult.String(result))
}
