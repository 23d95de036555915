package storage

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/grf/partitioner/internal/infrastructure/config"
)

// ============================================================================
// Unit Tests (no external dependencies)
// ============================================================================

func TestNewS3ObjectStorage_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(&config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("access key without secret returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(&config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("static credentials and endpoint", func(t *testing.T) {
		storage, err := NewS3ObjectStorage(&config.StorageConfig{
			Bucket:       "staging",
			AccessKey:    "k",
			SecretKey:    "s",
			Endpoint:     "localhost:9000",
			UsePathStyle: true,
		}, WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.Equal(t, "staging", storage.Bucket())
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"", false, ""},
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.local", true, "https://minio.local"},
		{"https://s3.eu-west-1.amazonaws.com", false, "https://s3.eu-west-1.amazonaws.com"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got, err := normalizeEndpoint(tt.endpoint, tt.useSSL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestS3ObjectStorage_EmptyKey(t *testing.T) {
	storage, err := NewS3ObjectStorage(&config.StorageConfig{Bucket: "b", AccessKey: "k", SecretKey: "s", Endpoint: "localhost:9000"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = storage.Open(ctx, "")
	assert.Error(t, err)
	assert.Error(t, storage.Put(ctx, "", nil, "text/csv"))
	_, err = storage.ObjectExists(ctx, "")
	assert.Error(t, err)
	assert.NoError(t, storage.Delete(ctx), "deleting nothing makes no request")
}

// ============================================================================
// Integration Tests (require an S3 compatible endpoint)
// ============================================================================

// newIntegrationStorage connects to S3_TEST_ENDPOINT (RustFS/MinIO), skipping when unset
func newIntegrationStorage(t *testing.T) *S3ObjectStorage {
	t.Helper()
	endpoint := os.Getenv("S3_TEST_ENDPOINT")
	if endpoint == "" || testing.Short() {
		t.Skip("Skipping integration test. Set S3_TEST_ENDPOINT to an S3 compatible endpoint to enable.")
	}

	storage, err := NewS3ObjectStorage(&config.StorageConfig{
		Bucket:       "partitioner-integration",
		AccessKey:    os.Getenv("S3_TEST_ACCESS_KEY"),
		SecretKey:    os.Getenv("S3_TEST_SECRET_KEY"),
		Endpoint:     endpoint,
		UsePathStyle: true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBucket(context.Background()))
	return storage
}

func TestIntegration_S3RoundTrip(t *testing.T) {
	storage := newIntegrationStorage(t)
	ctx := context.Background()
	keys := []string{"it/run=1/part=0/part-0.parquet", "it/run=1/part=1/part-1.parquet"}

	for _, key := range keys {
		require.NoError(t, storage.Put(ctx, key, []byte(key), "application/octet-stream"))
	}

	objects, err := storage.List(ctx, "it/run=1/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, keys[0], objects[0].Key)

	rc, err := storage.Open(ctx, keys[1])
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, keys[1], string(data))

	require.NoError(t, storage.Delete(ctx, keys...))
	exists, err := storage.ObjectExists(ctx, keys[0])
	require.NoError(t, err)
	assert.False(t, exists)
}
