package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"twitchbot/pkg/logger"
)

// RedisStore keeps counters as Redis integers under a key prefix.
type RedisStore struct {
	log    *logger.Logger
	client *redis.Client
	prefix string
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(log *logger.Logger, cfg *RedisStoreConfig) (*RedisStore, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "twitchbot:state:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	log.Info("Connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("prefix", cfg.Prefix))

	return &RedisStore{log: log, client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) prefixKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) unprefixKey(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

// Incr adds delta to key with INCRBY.
func (s *RedisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	value, err := s.client.IncrBy(ctx, s.prefixKey(key), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby: %w", err)
	}
	return value, nil
}

// Get returns the value of key.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	value, err := s.client.Get(ctx, s.prefixKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

// All scans every key under the prefix.
func (s *RedisStore) All(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		value, err := s.client.Get(ctx, full).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", full, err)
		}
		out[s.unprefixKey(full)] = value
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

// Delete removes a counter.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
