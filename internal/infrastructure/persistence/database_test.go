package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/grf/partitioner/internal/infrastructure/config"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
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

	return &Database{DB: gormDB, driver: "postgres"}, mock, mockDB
}

func TestNewDatabase(t *testing.T) {
	t.Run("opens sqlite and migrates", func(t *testing.T) {
		db, err := NewDatabase(&config.DatabaseConfig{
			Driver:       "sqlite",
			Path:         filepath.Join(t.TempDir(), "catalog.db"),
			MaxOpenConns: 4,
			LogLevel:     "info",
		}, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, "sqlite", db.Driver())
		require.NoError(t, db.AutoMigrate(context.Background()))
		assert.True(t, db.DB.Migrator().HasTable("catalog_tables"))
		assert.True(t, db.DB.Migrator().HasTable("catalog_partitions"))

		sqlDB, err := db.DB.DB()
		require.NoError(t, err)
		assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections, "sqlite uses a single connection")
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		_, err := NewDatabase(&config.DatabaseConfig{Driver: "mysql"}, nil)
		assert.ErrorContains(t, err, "unsupported database driver")
	})
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
