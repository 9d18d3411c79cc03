package linkage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultEnrichmentBatchSize is the number of concurrent lookups per batch
const DefaultEnrichmentBatchSize = 5

// PolicyLookup resolves the policies of a single contact
type PolicyLookup interface {
	GetPoliciesForContact(ctx context.Context, id uuid.UUID) (*ContactPolicies, error)
}

// ContactTables is the enrichment outcome for one contact. Err is set
// instead of Tables when the lookup failed.
type ContactTables struct {
	Tables []string
	Err    error
}

// Enricher resolves, for many contacts, which product tables hold their
// policies. Lookups run in fixed-size batches; one failing contact does not
// stop the others.
type Enricher struct {
	lookup    PolicyLookup
	batchSize int
	logger    *zap.Logger
}

// EnricherOption configures an Enricher
type EnricherOption func(*Enricher)

// WithBatchSize sets the number of lookups run concurrently
func WithBatchSize(n int) EnricherOption {
	return func(e *Enricher) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithEnricherLogger sets the logger
func WithEnricherLogger(logger *zap.Logger) EnricherOption {
	return func(e *Enricher) {
		e.logger = logger
	}
}

// NewEnricher creates an Enricher backed by lookup
func NewEnricher(lookup PolicyLookup, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		lookup:    lookup,
		batchSize: DefaultEnrichmentBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns an entry for every distinct id. Cancellation is checked
// between batches; ids in batches not started carry the context error.
func (e *Enricher) Enrich(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]ContactTables {
	ids = distinct(ids)
	out := make(map[uuid.UUID]ContactTables, len(ids))

	for start := 0; start < len(ids); start += e.batchSize {
		end := min(start+e.batchSize, len(ids))
		batch := ids[start:end]

		if err := ctx.Err(); err != nil {
			for _, id := range ids[start:] {
				out[id] = ContactTables{Err: err}
			}
			e.logger.Warn("Enrichment interrupted",
				zap.Int("remaining", len(ids)-start),
				zap.Error(err),
			)
			break
		}

		results := make([]ContactTables, len(batch))
		var g errgroup.Group
		for i, id := range batch {
			g.Go(func() error {
				found, err := e.lookup.GetPoliciesForContact(ctx, id)
				if err != nil {
					results[i] = ContactTables{Err: fmt.Errorf("failed to look up contact %s: %w", id, err)}
					return nil
				}
				results[i] = ContactTables{Tables: found.Tables()}
				return nil
			})
		}
		_ = g.Wait()

		for i, id := range batch {
			out[id] = results[i]
		}
	}

	return out
}

func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
