package linkage

import (
	"context"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/matching"
	"github.com/polizalink/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StatusUpdater applies a guarded status change to a set of contacts
type StatusUpdater interface {
	UpdateContactStatus(ctx context.Context, ids []uuid.UUID, to, precondition contact.ContactStatus) (int64, error)
}

// PromotionResult is the outcome of one promotion run.
// PromotedContactIDs is the whole candidate set the guarded update was
// issued for; AffectedCount is the number of rows the store changed.
type PromotionResult struct {
	PromotedContactIDs []uuid.UUID `json:"promoted_contact_ids"`
	AffectedCount      int64       `json:"affected_count"`
}

// PromotionWorkflow turns prospects that own at least one policy into clients
type PromotionWorkflow struct {
	updater StatusUpdater
	logger  *zap.Logger
}

// PromotionOption configures a PromotionWorkflow
type PromotionOption func(*PromotionWorkflow)

// WithPromotionLogger sets the logger
func WithPromotionLogger(logger *zap.Logger) PromotionOption {
	return func(w *PromotionWorkflow) {
		w.logger = logger
	}
}

// NewPromotionWorkflow creates a workflow writing through updater
func NewPromotionWorkflow(updater StatusUpdater, opts ...PromotionOption) *PromotionWorkflow {
	w := &PromotionWorkflow{
		updater: updater,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Promote issues a single guarded update moving every related contact that
// is still a prospect to client. An empty relationship set is a no-op and
// performs no write. Running it twice over unchanged data affects no rows
// the second time.
func (w *PromotionWorkflow) Promote(ctx context.Context, relationships []matching.Relationship) (PromotionResult, error) {
	ids := matching.ContactIDs(relationships)
	if len(ids) == 0 {
		w.logger.Debug("No related contacts, promotion skipped")
		return PromotionResult{PromotedContactIDs: []uuid.UUID{}}, nil
	}

	affected, err := w.updater.UpdateContactStatus(ctx, ids, contact.ContactStatusClient, contact.ContactStatusProspect)
	if err != nil {
		w.logger.Error("Guarded status update failed",
			zap.Int("candidates", len(ids)),
			zap.Error(err),
		)
		return PromotionResult{}, shared.NewUpstreamWriteError("promote contacts", err)
	}

	w.logger.Info("Contacts promoted to client",
		zap.Int("candidates", len(ids)),
		zap.Int64("affected", affected),
	)
	return PromotionResult{
		PromotedContactIDs: ids,
		AffectedCount:      affected,
	}, nil
}
