// Package integration runs the linkage engine against a real PostgreSQL
// started with testcontainers.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/polizalink/backend/internal/domain/policy"
	"github.com/polizalink/backend/internal/infrastructure/config"
	"github.com/polizalink/backend/internal/infrastructure/migration"
	"github.com/polizalink/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testDBName     = "polizalink_test"
	testDBUser     = "polizalink"
	testDBPassword = "polizalink"
)

// One container per test binary, migrated once and terminated by TestMain.
var (
	pgMu        sync.Mutex
	pgContainer *tcpostgres.PostgresContainer
	pgConfig    config.DatabaseConfig
)

// TestDB is a connection to the shared, migrated test database
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewSharedTestDB opens a fresh connection to the shared container,
// starting and migrating it on first use
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	cfg := startPostgres(t)

	var opts []persistence.DatabaseOption
	if os.Getenv("TEST_DB_DEBUG") != "" {
		opts = append(opts, persistence.WithGormLogger(logger.Default.LogMode(logger.Info)))
	}
	db, err := persistence.NewDatabase(&cfg, opts...)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{DB: db.DB, t: t}
}

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()

	pgMu.Lock()
	defer pgMu.Unlock()

	if pgContainer != nil {
		return pgConfig
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(testDBName),
		tcpostgres.WithUsername(testDBUser),
		tcpostgres.WithPassword(testDBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            testDBUser,
		Password:        testDBPassword,
		DBName:          testDBName,
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
		ConnMaxIdleTime: 1,
	}

	db, err := persistence.NewDatabase(&cfg)
	require.NoError(t, err, "Failed to connect for migrations")
	defer db.Close()

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	migrator, err := migration.New(sqlDB, migrationsDir(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up(), "Failed to apply migrations")

	pgContainer, pgConfig = container, cfg
	return cfg
}

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok, "Could not resolve test source path")
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// CleanupSharedContainer terminates the shared container. Call from TestMain.
func CleanupSharedContainer() {
	pgMu.Lock()
	defer pgMu.Unlock()

	if pgContainer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = pgContainer.Terminate(ctx)
	pgContainer = nil
}

// CleanTables empties contacts and every product table
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	tables := []string{"contacts"}
	for _, m := range policy.DefaultTables() {
		tables = append(tables, m.Table)
	}
	err := tdb.DB.Exec("TRUNCATE TABLE " + strings.Join(tables, ", ") + " RESTART IDENTITY").Error
	require.NoError(tdb.t, err, "Failed to truncate tables")
}

// InsertContact stores a contact with the given status and returns its ID
func (tdb *TestDB) InsertContact(name, email, status string) string {
	tdb.t.Helper()

	var id string
	err := tdb.DB.Raw(
		"INSERT INTO contacts (display_name, email, status) VALUES (?, ?, ?) RETURNING id",
		name, email, status,
	).Scan(&id).Error
	require.NoError(tdb.t, err, "Failed to insert contact")
	return id
}

// InsertPolicy stores a product table row. nameCol and emailCol are the
// table's own column names.
func (tdb *TestDB) InsertPolicy(table, nameCol, emailCol, number, name, email, premium string) {
	tdb.t.Helper()

	query := fmt.Sprintf(
		"INSERT INTO %s (numero_poliza, %s, %s, prima_total) VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?)",
		table, nameCol, emailCol,
	)
	err := tdb.DB.Exec(query, number, name, email, premium).Error
	require.NoError(tdb.t, err, "Failed to insert policy into %s", table)
}
