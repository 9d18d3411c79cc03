package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/policy"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// GormRecordSource reads contacts and the product tables, and writes
// product table rows. Product tables are addressed through
// policy.TableMapping since their column names differ.
type GormRecordSource struct {
	db       *gorm.DB
	contacts *GormContactRepository
}

// NewGormRecordSource creates a new GormRecordSource
func NewGormRecordSource(db *gorm.DB) *GormRecordSource {
	return &GormRecordSource{
		db:       db,
		contacts: NewGormContactRepository(db),
	}
}

// Contacts returns the contact repository sharing this connection
func (s *GormRecordSource) Contacts() *GormContactRepository {
	return s.contacts
}

// FetchContacts returns every contact
func (s *GormRecordSource) FetchContacts(ctx context.Context) ([]contact.Contact, error) {
	contacts, err := s.contacts.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}
	return contacts, nil
}

// UpdateContactStatus applies a guarded status change
func (s *GormRecordSource) UpdateContactStatus(ctx context.Context, ids []uuid.UUID, to, precondition contact.ContactStatus) (int64, error) {
	return s.contacts.UpdateStatusGuarded(ctx, ids, to, precondition)
}

type policyRow struct {
	PolicyholderName sql.NullString
	Email            sql.NullString
	PolicyNumber     sql.NullString
	Premium          decimal.NullDecimal
}

func selectColumns(m policy.TableMapping) string {
	cols := []string{
		m.NameColumn + " AS policyholder_name",
		"NULL AS email",
		m.NumberColumn + " AS policy_number",
		"NULL AS premium",
	}
	if m.EmailColumn != "" {
		cols[1] = m.EmailColumn + " AS email"
	}
	if m.PremiumColumn != "" {
		cols[3] = m.PremiumColumn + " AS premium"
	}
	return strings.Join(cols, ", ")
}

// FetchPolicyRecords reads every row of the table that has a non-empty
// policyholder name
func (s *GormRecordSource) FetchPolicyRecords(ctx context.Context, m policy.TableMapping) ([]policy.Record, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var rows []policyRow
	err := s.db.WithContext(ctx).
		Table(m.Table).
		Select(selectColumns(m)).
		Where(fmt.Sprintf("%s IS NOT NULL AND %s <> ''", m.NameColumn, m.NameColumn)).
		Order(m.NumberColumn).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", m.Table, err)
	}

	records := make([]policy.Record, 0, len(rows))
	for _, row := range rows {
		rec := policy.Record{
			PolicyholderName: row.PolicyholderName.String,
			Email:            row.Email.String,
			PolicyNumber:     row.PolicyNumber.String,
			LineOfBusiness:   m.LineOfBusiness,
			SourceTable:      m.Table,
		}
		if row.Premium.Valid {
			rec.Premium = row.Premium.Decimal
		}
		records = append(records, rec)
	}
	return records, nil
}

func recordValues(m policy.TableMapping, rec policy.Record) map[string]any {
	values := map[string]any{
		m.NameColumn:   rec.PolicyholderName,
		m.NumberColumn: rec.PolicyNumber,
	}
	if m.EmailColumn != "" {
		values[m.EmailColumn] = rec.Email
	}
	if m.PremiumColumn != "" {
		values[m.PremiumColumn] = rec.Premium
	}
	return values
}

// CreateRecord inserts a row into the table
func (s *GormRecordSource) CreateRecord(ctx context.Context, m policy.TableMapping, rec policy.Record) error {
	if err := m.Validate(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Table(m.Table).Create(recordValues(m, rec)).Error
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: policy number %s already exists in %s", shared.ErrAlreadyExists, rec.PolicyNumber, m.Table)
	}
	return err
}

// isDuplicateKey reports a unique constraint violation, whether translated
// by the gorm dialector or raised by pgx directly
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// UpdateRecord overwrites the row identified by policyNumber
func (s *GormRecordSource) UpdateRecord(ctx context.Context, m policy.TableMapping, policyNumber string, rec policy.Record) error {
	if err := m.Validate(); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Table(m.Table).
		Where(m.NumberColumn+" = ?", policyNumber).
		Updates(recordValues(m, rec))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteRecord removes the row identified by policyNumber
func (s *GormRecordSource) DeleteRecord(ctx context.Context, m policy.TableMapping, policyNumber string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", m.Table, m.NumberColumn), policyNumber)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountRecords returns the number of rows in the table
func (s *GormRecordSource) CountRecords(ctx context.Context, m policy.TableMapping) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Table(m.Table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count table %s: %w", m.Table, err)
	}
	return n, nil
}

var (
	_ policy.RecordSource = (*GormRecordSource)(nil)
	_ policy.RecordWriter = (*GormRecordSource)(nil)
)
