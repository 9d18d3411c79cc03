package linkage

import (
	"context"
	"time"

	"github.com/polizalink/backend/internal/domain/matching"
	"github.com/polizalink/backend/internal/infrastructure/telemetry"
)

// tableSpanHook opens a span per table pass and records its duration and
// outcome on metrics.
func tableSpanHook(metrics *telemetry.LinkageMetrics) matching.TableHook {
	return func(ctx context.Context, table string) (context.Context, func(int, error)) {
		ctx, span := telemetry.StartServiceSpan(ctx, "matcher", "match_table",
			telemetry.WithAttribute(telemetry.SpanAttrTable, table),
		)
		start := time.Now()
		return ctx, func(candidates int, err error) {
			metrics.RecordTable(ctx, table, time.Since(start), err)
			telemetry.SetAttributes(span, telemetry.SpanAttrCandidates, candidates)
			telemetry.RecordError(span, err)
			span.End()
		}
	}
}

// recordCandidateMetrics counts candidates per table and match type
func recordCandidateMetrics(ctx context.Context, metrics *telemetry.LinkageMetrics, candidates []matching.Candidate) {
	if metrics == nil {
		return
	}
	type bucket struct {
		table     string
		matchType matching.MatchType
	}
	counts := make(map[bucket]int)
	for _, c := range candidates {
		counts[bucket{c.PolicyTable, c.MatchType}]++
	}
	for b, n := range counts {
		metrics.RecordCandidates(ctx, b.table, string(b.matchType), n)
	}
}
