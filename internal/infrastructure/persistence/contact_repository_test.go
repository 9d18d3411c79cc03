package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/polizalink/backend/internal/domain/contact"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newMockContactRepository creates a GormContactRepository with a mocked SQL connection
func newMockContactRepository(t *testing.T) (*GormContactRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormContactRepository(gormDB), mock, mockDB
}

func setupContactTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.ContactModel{})
	require.NoError(t, err)

	return db
}

func saveContact(t *testing.T, repo *GormContactRepository, name, email string, status contact.ContactStatus) *contact.Contact {
	t.Helper()
	c, err := contact.NewContact(name, email)
	require.NoError(t, err)
	c.Status = status
	require.NoError(t, repo.Save(context.Background(), c))
	return c
}

// ==================== sqlmock ====================

func TestGormContactRepository_UpdateStatusGuarded_SQL(t *testing.T) {
	t.Run("issues a single guarded update", func(t *testing.T) {
		repo, mock, mockDB := newMockContactRepository(t)
		defer mockDB.Close()

		id1, id2 := uuid.New(), uuid.New()

		mock.ExpectExec(`UPDATE "contacts" SET "status"=\$1,"updated_at"=\$2 WHERE id IN \(\$3,\$4\) AND status = \$5`).
			WithArgs("client", sqlmock.AnyArg(), id1, id2, "prospect").
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := repo.UpdateStatusGuarded(context.Background(), []uuid.UUID{id1, id2},
			contact.ContactStatusClient, contact.ContactStatusProspect)

		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty id list issues no statement", func(t *testing.T) {
		repo, mock, mockDB := newMockContactRepository(t)
		defer mockDB.Close()

		n, err := repo.UpdateStatusGuarded(context.Background(), nil,
			contact.ContactStatusClient, contact.ContactStatusProspect)

		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates database errors", func(t *testing.T) {
		repo, mock, mockDB := newMockContactRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectExec(`UPDATE "contacts"`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.UpdateStatusGuarded(context.Background(), []uuid.UUID{id},
			contact.ContactStatusClient, contact.ContactStatusProspect)

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormContactRepository_FindByID_SQL(t *testing.T) {
	t.Run("returns ErrNotFound for unknown id", func(t *testing.T) {
		repo, mock, mockDB := newMockContactRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "contacts" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(id, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		c, err := repo.FindByID(context.Background(), id)

		assert.Nil(t, c)
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// ==================== sqlite ====================

func TestGormContactRepository_SaveAndFind(t *testing.T) {
	repo := NewGormContactRepository(setupContactTestDB(t))
	ctx := context.Background()

	saved := saveContact(t, repo, "Juan Pérez", "juan@example.com", contact.ContactStatusProspect)

	found, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Juan Pérez", found.DisplayName)
	assert.Equal(t, "juan@example.com", found.Email)
	assert.Equal(t, contact.ContactStatusProspect, found.Status)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormContactRepository_FindAll(t *testing.T) {
	repo := NewGormContactRepository(setupContactTestDB(t))

	a := saveContact(t, repo, "Ana", "", contact.ContactStatusProspect)
	time.Sleep(2 * time.Millisecond)
	b := saveContact(t, repo, "Beto", "", contact.ContactStatusClient)

	all, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)
}

func TestGormContactRepository_UpdateStatusGuarded(t *testing.T) {
	repo := NewGormContactRepository(setupContactTestDB(t))
	ctx := context.Background()

	p1 := saveContact(t, repo, "Prospect One", "", contact.ContactStatusProspect)
	p2 := saveContact(t, repo, "Prospect Two", "", contact.ContactStatusProspect)
	cl := saveContact(t, repo, "Client", "", contact.ContactStatusClient)
	in := saveContact(t, repo, "Inactive", "", contact.ContactStatusInactive)

	ids := []uuid.UUID{p1.ID, p2.ID, cl.ID, in.ID}

	t.Run("promotes only prospects", func(t *testing.T) {
		n, err := repo.UpdateStatusGuarded(ctx, ids, contact.ContactStatusClient, contact.ContactStatusProspect)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := repo.FindByID(ctx, in.ID)
		require.NoError(t, err)
		assert.Equal(t, contact.ContactStatusInactive, got.Status)
	})

	t.Run("second run changes nothing", func(t *testing.T) {
		n, err := repo.UpdateStatusGuarded(ctx, ids, contact.ContactStatusClient, contact.ContactStatusProspect)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestGormContactRepository_CountByStatus(t *testing.T) {
	repo := NewGormContactRepository(setupContactTestDB(t))

	saveContact(t, repo, "A", "", contact.ContactStatusProspect)
	saveContact(t, repo, "B", "", contact.ContactStatusProspect)
	saveContact(t, repo, "C", "", contact.ContactStatusClient)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[contact.ContactStatusProspect])
	assert.Equal(t, int64(1), counts[contact.ContactStatusClient])
	assert.Zero(t, counts[contact.ContactStatusInactive])
	assert.Equal(t, int64(3), counts.Total())
}
