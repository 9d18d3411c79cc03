package linkage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/policy"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Record Source
// =============================================================================

type MockRecordSource struct {
	mock.Mock
}

func (m *MockRecordSource) FetchContacts(ctx context.Context) ([]contact.Contact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]contact.Contact), args.Error(1)
}

func (m *MockRecordSource) FetchPolicyRecords(ctx context.Context, table policy.TableMapping) ([]policy.Record, error) {
	args := m.Called(ctx, table.Table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]policy.Record), args.Error(1)
}

func (m *MockRecordSource) UpdateContactStatus(ctx context.Context, ids []uuid.UUID, to, precondition contact.ContactStatus) (int64, error) {
	args := m.Called(ctx, ids, to, precondition)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecordSource) CountRecords(ctx context.Context, table policy.TableMapping) (int64, error) {
	args := m.Called(ctx, table.Table)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Mock Contact Repository
// =============================================================================

type MockContactRepository struct {
	mock.Mock
}

func (m *MockContactRepository) FindAll(ctx context.Context) ([]contact.Contact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]contact.Contact), args.Error(1)
}

func (m *MockContactRepository) FindByID(ctx context.Context, id uuid.UUID) (*contact.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contact.Contact), args.Error(1)
}

func (m *MockContactRepository) UpdateStatusGuarded(ctx context.Context, ids []uuid.UUID, to, precondition contact.ContactStatus) (int64, error) {
	args := m.Called(ctx, ids, to, precondition)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockContactRepository) CountByStatus(ctx context.Context) (contact.StatusCounts, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(contact.StatusCounts), args.Error(1)
}

func (m *MockContactRepository) Save(ctx context.Context, c *contact.Contact) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// =============================================================================
// Mock Record Writer
// =============================================================================

type MockRecordWriter struct {
	mock.Mock
}

func (m *MockRecordWriter) CreateRecord(ctx context.Context, table policy.TableMapping, rec policy.Record) error {
	args := m.Called(ctx, table.Table, rec)
	return args.Error(0)
}

func (m *MockRecordWriter) UpdateRecord(ctx context.Context, table policy.TableMapping, policyNumber string, rec policy.Record) error {
	args := m.Called(ctx, table.Table, policyNumber, rec)
	return args.Error(0)
}

func (m *MockRecordWriter) DeleteRecord(ctx context.Context, table policy.TableMapping, policyNumber string) error {
	args := m.Called(ctx, table.Table, policyNumber)
	return args.Error(0)
}

func (m *MockRecordWriter) CountRecords(ctx context.Context, table policy.TableMapping) (int64, error) {
	args := m.Called(ctx, table.Table)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Fixtures
// =============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newContact(name, email string, status contact.ContactStatus) contact.Contact {
	c := contact.Contact{
		DisplayName: name,
		Email:       email,
		Status:      status,
	}
	c.ID = uuid.New()
	return c
}

func testTables(names ...string) []policy.TableMapping {
	tables := make([]policy.TableMapping, len(names))
	for i, n := range names {
		tables[i] = policy.TableMapping{
			Table:          n,
			NameColumn:     "contratante",
			EmailColumn:    "email",
			NumberColumn:   "numero_poliza",
			LineOfBusiness: n,
			PremiumColumn:  "prima_total",
		}
	}
	return tables
}
