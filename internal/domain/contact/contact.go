package contact

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/shared"
)

// ContactStatus represents where a contact is in the sales lifecycle
type ContactStatus string

const (
	ContactStatusProspect ContactStatus = "prospect"
	ContactStatusClient   ContactStatus = "client"
	ContactStatusInactive ContactStatus = "inactive"
)

// IsValid reports whether s is a known status
func (s ContactStatus) IsValid() bool {
	switch s {
	case ContactStatusProspect, ContactStatusClient, ContactStatusInactive:
		return true
	}
	return false
}

// Contact is a directory entry that may or may not hold policies.
// Contacts are owned by the directory store; the linkage engine only reads
// them and promotes their status.
type Contact struct {
	shared.BaseEntity
	DisplayName string        `json:"display_name"`
	Email       string        `json:"email"`
	Status      ContactStatus `json:"status"`
}

// NewContact creates a prospect with the given name and email
func NewContact(displayName, email string) (*Contact, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Contact display name cannot be empty")
	}
	if len(displayName) > 200 {
		return nil, shared.NewDomainError("INVALID_NAME", "Contact display name cannot exceed 200 characters")
	}
	return &Contact{
		BaseEntity:  shared.NewBaseEntity(),
		DisplayName: displayName,
		Email:       strings.TrimSpace(email),
		Status:      ContactStatusProspect,
	}, nil
}

// HasName reports whether the contact can take part in name matching
func (c *Contact) HasName() bool {
	return strings.TrimSpace(c.DisplayName) != ""
}

// HasEmail reports whether the contact can take part in email matching
func (c *Contact) HasEmail() bool {
	return strings.TrimSpace(c.Email) != ""
}

// IsProspect returns true if the contact has not been promoted yet
func (c *Contact) IsProspect() bool {
	return c.Status == ContactStatusProspect
}

// StatusCounts is the number of contacts in each status
type StatusCounts map[ContactStatus]int64

// Total returns the sum over all statuses
func (s StatusCounts) Total() int64 {
	var n int64
	for _, v := range s {
		n += v
	}
	return n
}

// ContactRepository is the directory-side half of the record source.
type ContactRepository interface {
	// FindAll returns every contact in the directory.
	FindAll(ctx context.Context) ([]Contact, error)

	// FindByID returns shared.ErrNotFound when the id is unknown.
	FindByID(ctx context.Context, id uuid.UUID) (*Contact, error)

	// UpdateStatusGuarded sets status to `to` for ids whose current status
	// equals precondition, in one statement. It returns the affected row count.
	UpdateStatusGuarded(ctx context.Context, ids []uuid.UUID, to, precondition ContactStatus) (int64, error)

	// CountByStatus returns the number of contacts per status.
	CountByStatus(ctx context.Context) (StatusCounts, error)

	// Save inserts or updates a contact.
	Save(ctx context.Context, c *Contact) error
}
