package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/config"
)

// DefaultRedisTTL bounds how long a crashed writer can keep a path locked.
const DefaultRedisTTL = 30 * time.Second

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisManager shares path locks between diskfs processes that write the
// same local root, for example several workers on one NFS mount. Keys are
// namespaced by disk so two disks never contend.
type RedisManager struct {
	client    *redis.Client
	namespace string
	token     string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisManager connects to cfg and verifies the connection. A
// non-positive ttl selects DefaultRedisTTL.
func NewRedisManager(ctx context.Context, cfg config.RedisConfig, disk string, ttl time.Duration, logger *zap.Logger) (*RedisManager, error) {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 4,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisManager{
		client:    client,
		namespace: config.DefaultCachePrefix + "lock:" + disk + ":",
		token:     uuid.NewString(),
		ttl:       ttl,
		logger:    logger,
	}, nil
}

func (m *RedisManager) key(path string) string { return m.namespace + path }

// Acquire sets the lock key with a TTL if nobody holds it.
func (m *RedisManager) Acquire(ctx context.Context, path string) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key(path), m.token, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return ok, nil
}

// Release removes the lock if this manager still owns it. A lock that
// already expired and was taken over by another process is left alone.
func (m *RedisManager) Release(ctx context.Context, path string) error {
	deleted, err := releaseScript.Run(ctx, m.client, []string{m.key(path)}, m.token).Int()
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", path, err)
	}
	if deleted == 0 {
		m.logger.Warn("Path lock expired before release", zap.String("key", m.key(path)), zap.Duration("ttl", m.ttl))
	}
	return nil
}

// Close closes the Redis client.
func (m *RedisManager) Close() error {
	return m.client.Close()
}
