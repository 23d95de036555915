package migration

import (
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grf/partitioner/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	source, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, identifier, err := source.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_catalog", identifier)

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS catalog_tables")
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS catalog_partitions")

	down, _, err := source.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestNewFromDSN_InvalidDSN(t *testing.T) {
	_, err := NewFromDSN("postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", nil)
	assert.Error(t, err)
}
