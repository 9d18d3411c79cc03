package policy

import (
	"context"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
)

// RecordSource is read access to contacts and per-table policyholder records
// plus the guarded status write used by promotion.
type RecordSource interface {
	FetchContacts(ctx context.Context) ([]contact.Contact, error)
	FetchPolicyRecords(ctx context.Context, table TableMapping) ([]Record, error)
	UpdateContactStatus(ctx context.Context, ids []uuid.UUID, to, precondition contact.ContactStatus) (int64, error)
}

// RecordWriter mutates rows of a product table.
type RecordWriter interface {
	CreateRecord(ctx context.Context, table TableMapping, rec Record) error
	// UpdateRecord returns shared.ErrNotFound when no row has policyNumber.
	UpdateRecord(ctx context.Context, table TableMapping, policyNumber string, rec Record) error
	// DeleteRecord returns shared.ErrNotFound when no row has policyNumber.
	DeleteRecord(ctx context.Context, table TableMapping, policyNumber string) error
	CountRecords(ctx context.Context, table TableMapping) (int64, error)
}
