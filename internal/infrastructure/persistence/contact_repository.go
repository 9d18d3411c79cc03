package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormContactRepository implements contact.ContactRepository using GORM
type GormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository creates a new GormContactRepository
func NewGormContactRepository(db *gorm.DB) *GormContactRepository {
	return &GormContactRepository{db: db}
}

// FindAll returns every contact ordered by creation time
func (r *GormContactRepository) FindAll(ctx context.Context) ([]contact.Contact, error) {
	var rows []models.ContactModel
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	contacts := make([]contact.Contact, len(rows))
	for i := range rows {
		contacts[i] = rows[i].ToDomain()
	}
	return contacts, nil
}

// FindByID finds a contact by its ID
func (r *GormContactRepository) FindByID(ctx context.Context, id uuid.UUID) (*contact.Contact, error) {
	var model models.ContactModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	c := model.ToDomain()
	return &c, nil
}

// UpdateStatusGuarded moves the given contacts to status `to`, but only the
// ones currently in `precondition`. Rows already promoted are not touched,
// which makes repeated calls safe.
func (r *GormContactRepository) UpdateStatusGuarded(ctx context.Context, ids []uuid.UUID, to, precondition contact.ContactStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.ContactModel{}).
		Where("id IN ? AND status = ?", ids, string(precondition)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

type statusCountRow struct {
	Status string
	Count  int64
}

// CountByStatus returns the number of contacts per status
func (r *GormContactRepository) CountByStatus(ctx context.Context) (contact.StatusCounts, error) {
	var rows []statusCountRow
	if err := r.db.WithContext(ctx).
		Model(&models.ContactModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := contact.StatusCounts{}
	for _, row := range rows {
		counts[contact.ContactStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// Save creates or updates a contact
func (r *GormContactRepository) Save(ctx context.Context, c *contact.Contact) error {
	return r.db.WithContext(ctx).Save(models.ContactModelFromDomain(c)).Error
}

var _ contact.ContactRepository = (*GormContactRepository)(nil)
