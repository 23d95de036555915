package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/grf/partitioner/internal/domain/partition"
	"github.com/grf/partitioner/internal/infrastructure/config"
)

func TestInMemoryRunLock(t *testing.T) {
	ctx := context.Background()

	t.Run("second acquire fails until release", func(t *testing.T) {
		lock := NewInMemoryRunLock()

		handle, err := lock.Acquire(ctx, "glacier_refreezer.partitioned_inventory", time.Hour)
		require.NoError(t, err)
		assert.True(t, lock.Held("glacier_refreezer.partitioned_inventory"))

		_, err = lock.Acquire(ctx, "glacier_refreezer.partitioned_inventory", time.Hour)
		assert.ErrorIs(t, err, partition.ErrRunLocked)

		_, err = lock.Acquire(ctx, "glacier_refreezer.other", time.Hour)
		assert.NoError(t, err, "different tables do not conflict")

		require.NoError(t, handle.Release(ctx))
		assert.False(t, lock.Held("glacier_refreezer.partitioned_inventory"))

		_, err = lock.Acquire(ctx, "glacier_refreezer.partitioned_inventory", time.Hour)
		assert.NoError(t, err)
	})

	t.Run("expired lock is taken over", func(t *testing.T) {
		lock := NewInMemoryRunLock()
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		lock.now = func() time.Time { return now }

		stale, err := lock.Acquire(ctx, "t", time.Minute)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		_, err = lock.Acquire(ctx, "t", time.Minute)
		require.NoError(t, err)

		// the stale owner must not drop the new owner's lock
		require.NoError(t, stale.Release(ctx))
		assert.True(t, lock.Held("t"))
	})
}

func TestRunLockFactory(t *testing.T) {
	t.Run("in-memory when redis is disabled", func(t *testing.T) {
		lock, err := NewRunLockFactory(config.RedisConfig{}).CreateLock()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryRunLock{}, lock)
	})

	unreachable := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	t.Run("unreachable redis fails without fallback", func(t *testing.T) {
		_, err := NewRunLockFactory(unreachable).CreateLock()
		assert.ErrorContains(t, err, "Redis required")
	})

	t.Run("unreachable redis falls back when allowed", func(t *testing.T) {
		lock, err := NewRunLockFactory(unreachable,
			WithInMemoryFallback(true),
			WithLogger(zaptest.NewLogger(t)),
		).CreateLock()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryRunLock{}, lock)
	})
}

// newRedisClient starts a redis container, skipping in short mode
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntegration_RedisRunLock(t *testing.T) {
	client := newRedisClient(t)
	lock := NewRedisRunLockWithClient(client, "test:lock:")
	ctx := context.Background()

	handle, err := lock.Acquire(ctx, "db.table", time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "db.table", time.Minute)
	assert.ErrorIs(t, err, partition.ErrRunLocked)

	ttl, err := client.TTL(ctx, "test:lock:db.table").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, handle.Release(ctx))
	exists, err := client.Exists(ctx, "test:lock:db.table").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	// a handle whose key was taken over does not delete the new owner's key
	require.NoError(t, client.Set(ctx, "test:lock:db.table", "someone-else", time.Minute).Err())
	require.NoError(t, handle.Release(ctx))
	value, err := client.Get(ctx, "test:lock:db.table").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}
