package scheduler

import (
	"context"
	"fmt"

	"github.com/polizalink/backend/internal/application/linkage"
	"go.uber.org/zap"
)

// Promoter runs the prospect to client promotion
type Promoter interface {
	PromoteClientStatuses(ctx context.Context) (*linkage.PromotionOutcome, error)
}

// PromotionExecutor executes JobKindPromoteContacts jobs
type PromotionExecutor struct {
	promoter Promoter
	logger   *zap.Logger
}

// NewPromotionExecutor creates a new PromotionExecutor
func NewPromotionExecutor(promoter Promoter, logger *zap.Logger) *PromotionExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionExecutor{promoter: promoter, logger: logger}
}

// Execute implements JobExecutor
func (e *PromotionExecutor) Execute(ctx context.Context, job *Job) error {
	outcome, err := e.promoter.PromoteClientStatuses(ctx)
	if err != nil {
		return fmt.Errorf("failed to promote contacts: %w", err)
	}

	e.logger.Info("Scheduled promotion finished",
		zap.String("job_id", job.ID.String()),
		zap.Int64("updated_count", outcome.UpdatedCount),
		zap.Int("candidates", len(outcome.UpdatedIDs)),
	)
	return nil
}
