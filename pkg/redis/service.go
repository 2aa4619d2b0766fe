// Package redis provides optional coordination primitives. The engine is
// fully functional without Redis; when configured, it is used to short-cut
// duplicate webhook deliveries and to keep two instances from evaluating the
// same tenant concurrently. Database constraints remain the source of truth.
package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type KeyType string

const (
	INBOUND_DEDUP KeyType = "wa_inbound_dedup"
	EVAL_LOCK     KeyType = "wa_eval_lock"
)

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoadRedisConfigFromEnv reads the Redis configuration. An empty REDIS_HOST
// means Redis is not configured.
func LoadRedisConfigFromEnv() *RedisConfig {
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	return &RedisConfig{
		Host:     os.Getenv("REDIS_HOST"),
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

type RedisService struct {
	client *redis.Client
}

// NewRedisServiceFromEnv connects to Redis when configured. It returns
// (nil, nil) when REDIS_HOST is unset; a nil *RedisService is valid and all
// its methods degrade to single-instance behavior.
func NewRedisServiceFromEnv() (*RedisService, error) {
	config := LoadRedisConfigFromEnv()
	if config.Host == "" {
		return nil, nil
	}
	return NewRedisService(config)
}

func NewRedisService(config *RedisConfig) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisService{
		client: client,
	}, nil
}

// Enabled reports whether a Redis backend is actually connected.
func (r *RedisService) Enabled() bool {
	return r != nil && r.client != nil
}

// GenerateKey generates a Redis key with the given key type and identifier
func (r *RedisService) GenerateKey(keyType KeyType, identifier string) string {
	return fmt.Sprintf("%s:%s", string(keyType), identifier)
}

// SetNX stores the value only when the key does not exist yet and reports
// whether this caller created it. Without Redis it always reports true, so
// callers fall through to their database-level guarantees.
func (r *RedisService) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if !r.Enabled() {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to setnx: %w", err)
	}
	return ok, nil
}

// DelValue deletes a value from Redis by key
func (r *RedisService) DelValue(ctx context.Context, key string) error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Del(ctx, key).Err()
}

// Close releases the underlying connection pool.
func (r *RedisService) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Close()
}
