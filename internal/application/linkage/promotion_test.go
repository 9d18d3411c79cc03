package linkage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/matching"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func relationshipFor(c contact.Contact, policyNumbers ...string) matching.Relationship {
	rel := matching.Relationship{Contact: c}
	for _, n := range policyNumbers {
		rel.Policies = append(rel.Policies, matching.PolicySummary{Table: "autos", PolicyNumber: n})
	}
	return rel
}

func TestPromotionWorkflow_Promote(t *testing.T) {
	ctx := context.Background()

	t.Run("three prospects and one client", func(t *testing.T) {
		p1 := newContact("Ana Ruiz", "", contact.ContactStatusProspect)
		p2 := newContact("Luis Gomez", "", contact.ContactStatusProspect)
		p3 := newContact("Marta Diaz", "", contact.ContactStatusProspect)
		c1 := newContact("Pablo Sanz", "", contact.ContactStatusClient)
		rels := []matching.Relationship{
			relationshipFor(p1, "AUT-1"),
			relationshipFor(p2, "AUT-2"),
			relationshipFor(p3, "AUT-3"),
			relationshipFor(c1, "AUT-4"),
		}
		ids := []uuid.UUID{p1.ID, p2.ID, p3.ID, c1.ID}

		source := new(MockRecordSource)
		source.On("UpdateContactStatus", ctx, ids, contact.ContactStatusClient, contact.ContactStatusProspect).
			Return(int64(3), nil).Once()

		result, err := NewPromotionWorkflow(source).Promote(ctx, rels)
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.AffectedCount)
		assert.Len(t, result.PromotedContactIDs, 4)
		source.AssertExpectations(t)
	})

	t.Run("empty candidate set is a no-op", func(t *testing.T) {
		source := new(MockRecordSource)

		result, err := NewPromotionWorkflow(source).Promote(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.AffectedCount)
		assert.Empty(t, result.PromotedContactIDs)
		source.AssertNotCalled(t, "UpdateContactStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("second run affects nothing", func(t *testing.T) {
		p1 := newContact("Ana Ruiz", "", contact.ContactStatusProspect)
		rels := []matching.Relationship{relationshipFor(p1, "AUT-1")}

		source := new(MockRecordSource)
		source.On("UpdateContactStatus", ctx, []uuid.UUID{p1.ID}, contact.ContactStatusClient, contact.ContactStatusProspect).
			Return(int64(1), nil).Once()
		source.On("UpdateContactStatus", ctx, []uuid.UUID{p1.ID}, contact.ContactStatusClient, contact.ContactStatusProspect).
			Return(int64(0), nil).Once()

		workflow := NewPromotionWorkflow(source)
		first, err := workflow.Promote(ctx, rels)
		require.NoError(t, err)
		second, err := workflow.Promote(ctx, rels)
		require.NoError(t, err)

		assert.Equal(t, int64(1), first.AffectedCount)
		assert.Equal(t, int64(0), second.AffectedCount)
	})

	t.Run("duplicate contacts are sent once", func(t *testing.T) {
		p1 := newContact("Ana Ruiz", "", contact.ContactStatusProspect)
		rels := []matching.Relationship{relationshipFor(p1, "AUT-1"), relationshipFor(p1, "AUT-2")}

		source := new(MockRecordSource)
		source.On("UpdateContactStatus", ctx, []uuid.UUID{p1.ID}, contact.ContactStatusClient, contact.ContactStatusProspect).
			Return(int64(1), nil).Once()

		result, err := NewPromotionWorkflow(source).Promote(ctx, rels)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{p1.ID}, result.PromotedContactIDs)
	})

	t.Run("write failure is surfaced as upstream write error", func(t *testing.T) {
		p1 := newContact("Ana Ruiz", "", contact.ContactStatusProspect)

		source := new(MockRecordSource)
		source.On("UpdateContactStatus", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(int64(0), errors.New("connection reset"))

		_, err := NewPromotionWorkflow(source).Promote(ctx, []matching.Relationship{relationshipFor(p1, "AUT-1")})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrUpstreamWrite)

		var writeErr *shared.UpstreamWriteError
		require.ErrorAs(t, err, &writeErr)
		assert.Contains(t, writeErr.Err.Error(), "connection reset")
	})
}
