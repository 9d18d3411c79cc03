package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/application/linkage"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPromoter struct {
	mock.Mock
}

func (m *MockPromoter) PromoteClientStatuses(ctx context.Context) (*linkage.PromotionOutcome, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*linkage.PromotionOutcome), args.Error(1)
}

func TestPromotionExecutor_Execute(t *testing.T) {
	job := NewJob(JobKindPromoteContacts, 0)

	t.Run("success", func(t *testing.T) {
		promoter := new(MockPromoter)
		promoter.On("PromoteClientStatuses", mock.Anything).Return(&linkage.PromotionOutcome{
			UpdatedCount: 2,
			UpdatedIDs:   []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
			NewStats:     contact.StatusCounts{contact.ContactStatusClient: 3},
		}, nil)

		err := NewPromotionExecutor(promoter, nil).Execute(context.Background(), job)
		require.NoError(t, err)
		promoter.AssertExpectations(t)
	})

	t.Run("wraps promotion failure", func(t *testing.T) {
		cause := &shared.UpstreamWriteError{Op: "update contact status", Err: errors.New("connection reset")}
		promoter := new(MockPromoter)
		promoter.On("PromoteClientStatuses", mock.Anything).Return(nil, cause)

		err := NewPromotionExecutor(promoter, nil).Execute(context.Background(), job)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrUpstreamWrite)
		assert.Contains(t, err.Error(), "failed to promote contacts")
	})
}

func TestPromotionExecutor_Scheduled(t *testing.T) {
	promoter := new(MockPromoter)
	promoter.On("PromoteClientStatuses", mock.Anything).Return(&linkage.PromotionOutcome{}, nil).Once()

	s := startScheduler(t, testConfig(), NewPromotionExecutor(promoter, nil))
	_, err := s.Submit(JobKindPromoteContacts)
	require.NoError(t, err)

	waitForStatus(t, s, JobStatusSuccess)
	promoter.AssertExpectations(t)
}
