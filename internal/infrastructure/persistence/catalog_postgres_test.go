package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grf/partitioner/internal/domain/partition"
	"github.com/grf/partitioner/internal/infrastructure/migration"
)

// newPostgresCatalog starts a postgres container and applies the embedded migrations
func newPostgresCatalog(t *testing.T) *GormCatalogRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("catalog_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := migration.NewFromDSN(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return NewGormCatalogRepository(db)
}

func TestIntegration_PostgresCatalog(t *testing.T) {
	repo := newPostgresCatalog(t)
	ctx := context.Background()

	require.NoError(t, repo.RegisterTable(ctx, inputTable("inventory", "inventory/")))
	table, err := repo.GetTable(ctx, "glacier_refreezer", "inventory")
	require.NoError(t, err)
	assert.Equal(t, "inventory/", table.Location)

	entries := []partition.PartitionEntry{
		{PartitionID: 0, Location: "partitioned/run=a/part=0/part-0.parquet", Records: 2, MinRowNum: 0, MaxRowNum: 1},
		{PartitionID: 1, Location: "partitioned/run=a/part=1/part-1.parquet", Records: 1, MinRowNum: 2, MaxRowNum: 2},
	}
	previous, err := repo.CommitOutput(ctx, outputTable("a"), entries)
	require.NoError(t, err)
	assert.Nil(t, previous)

	previous, err = repo.CommitOutput(ctx, outputTable("b"), entries[:1])
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "a", previous.RunID)

	listed, err := repo.ListPartitions(ctx, "glacier_refreezer", "partitioned_inventory")
	require.NoError(t, err)
	assert.Equal(t, entries[:1], listed)
}
