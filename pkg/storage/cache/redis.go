package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions overrides values parsed from the redis URL
type RedisOptions struct {
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// NewRedisClient parses a redis:// URL, applies overrides and verifies connectivity
func NewRedisClient(ctx context.Context, url string, overrides RedisOptions) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if overrides.Password != "" {
		opts.Password = overrides.Password
	}
	if overrides.DB > 0 {
		opts.DB = overrides.DB
	}
	if overrides.MaxRetries > 0 {
		opts.MaxRetries = overrides.MaxRetries
	}
	if overrides.PoolSize > 0 {
		opts.PoolSize = overrides.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
