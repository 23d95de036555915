package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/grf/partitioner/internal/domain/partition"
	"github.com/grf/partitioner/internal/infrastructure/config"
)

const defaultLockPrefix = "partitioner:lock:"

// releaseScript deletes the key only if it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock implements RunLock using Redis so that runs on different
// hosts exclude each other
type RedisRunLock struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRunLock connects to Redis and checks the connection
func NewRedisRunLock(cfg config.RedisConfig) (*RedisRunLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRunLockWithClient(client, ""), nil
}

// NewRedisRunLockWithClient creates a lock with an existing Redis client
func NewRedisRunLockWithClient(client *redis.Client, keyPrefix string) *RedisRunLock {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	return &RedisRunLock{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes key with SET NX and a TTL, so a crashed run frees the
// lock once the TTL passes
func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (partition.LockHandle, error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock %s: %w", key, err)
	}
	if !ok {
		return nil, partition.NewDomainError(partition.ErrCodeRunLocked,
			fmt.Sprintf("a run already holds %s", key))
	}

	return &redisHandle{client: l.client, key: redisKey, token: token}, nil
}

// Close closes the Redis client
func (l *RedisRunLock) Close() error {
	return l.client.Close()
}

type redisHandle struct {
	client *redis.Client
	key    string
	token  string
}

// Release deletes the key if this handle still owns it
func (h *redisHandle) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Ensure RedisRunLock implements RunLock
var _ partition.RunLock = (*RedisRunLock)(nil)
