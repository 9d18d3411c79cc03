package linkage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/matching"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	mu       sync.Mutex
	results  map[uuid.UUID]*ContactPolicies
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    int
}

func (s *stubLookup) GetPoliciesForContact(ctx context.Context, id uuid.UUID) (*ContactPolicies, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	found, ok := s.results[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return found, nil
}

func policiesIn(tables ...string) *ContactPolicies {
	out := &ContactPolicies{}
	for _, t := range tables {
		out.Policies = append(out.Policies, matching.PolicySummary{Table: t, PolicyNumber: t + "-1"})
	}
	out.TotalPolicies = len(out.Policies)
	return out
}

func TestEnricher_Enrich(t *testing.T) {
	ctx := context.Background()

	t.Run("collects tables per contact and isolates failures", func(t *testing.T) {
		a, b, missing := uuid.New(), uuid.New(), uuid.New()
		lookup := &stubLookup{results: map[uuid.UUID]*ContactPolicies{
			a: policiesIn("autos", "vida", "autos"),
			b: policiesIn(),
		}}

		out := NewEnricher(lookup).Enrich(ctx, []uuid.UUID{a, b, missing})

		require.Len(t, out, 3)
		assert.NoError(t, out[a].Err)
		assert.Equal(t, []string{"autos", "vida"}, out[a].Tables)
		assert.NoError(t, out[b].Err)
		assert.Empty(t, out[b].Tables)
		assert.ErrorIs(t, out[missing].Err, shared.ErrNotFound)
	})

	t.Run("deduplicates ids", func(t *testing.T) {
		a := uuid.New()
		lookup := &stubLookup{results: map[uuid.UUID]*ContactPolicies{a: policiesIn("gmm")}}

		out := NewEnricher(lookup).Enrich(ctx, []uuid.UUID{a, a, a})

		assert.Len(t, out, 1)
		assert.Equal(t, 1, lookup.calls)
	})

	t.Run("never exceeds the batch size", func(t *testing.T) {
		results := make(map[uuid.UUID]*ContactPolicies)
		ids := make([]uuid.UUID, 12)
		for i := range ids {
			ids[i] = uuid.New()
			results[ids[i]] = policiesIn("hogar")
		}
		lookup := &stubLookup{results: results}

		out := NewEnricher(lookup, WithBatchSize(3)).Enrich(ctx, ids)

		assert.Len(t, out, 12)
		assert.LessOrEqual(t, lookup.peak.Load(), int32(3))
	})

	t.Run("cancelled context marks every id", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		a, b := uuid.New(), uuid.New()
		lookup := &stubLookup{results: map[uuid.UUID]*ContactPolicies{}}

		out := NewEnricher(lookup).Enrich(cancelled, []uuid.UUID{a, b})

		require.Len(t, out, 2)
		assert.True(t, errors.Is(out[a].Err, context.Canceled))
		assert.True(t, errors.Is(out[b].Err, context.Canceled))
		assert.Equal(t, 0, lookup.calls)
	})

	t.Run("ignores non-positive batch size", func(t *testing.T) {
		e := NewEnricher(&stubLookup{}, WithBatchSize(0))
		assert.Equal(t, DefaultEnrichmentBatchSize, e.batchSize)
	})
}
