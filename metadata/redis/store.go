package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/metadata"
)

// RedisStore caches adapter metadata in Redis using native key expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis cache store: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. prefix is prepended
// to every key and may be empty.
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*metadata.Attributes, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cached metadata: %w", err)
	}

	var attrs metadata.Attributes
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode cached metadata: %w", err)
	}
	return &attrs, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, attrs *metadata.Attributes, ttl time.Duration) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := s.client.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache metadata: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached metadata: %w", err)
	}
	return nil
}

func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	deleted := 0
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err == nil {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to delete cached metadata prefix: %w", err)
	}

	s.logger.Debug("Cache prefix invalidated",
		zap.String("prefix", prefix),
		zap.Int("deleted", deleted))
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}
