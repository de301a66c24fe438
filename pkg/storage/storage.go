package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pricebulk/pricebulk/pkg/config"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/pricebulk/pricebulk/pkg/storage/cache"
	"github.com/pricebulk/pricebulk/pkg/storage/memory"
	"github.com/pricebulk/pricebulk/pkg/storage/postgres"
	"github.com/pricebulk/pricebulk/pkg/storage/sqlite"
	"github.com/pricebulk/pricebulk/pkg/usage"
	"github.com/sirupsen/logrus"
)

// replicaCheckInterval is how often unhealthy postgres replicas are pruned
const replicaCheckInterval = 30 * time.Second

// Backend is an opened usage store together with the connections it owns
type Backend struct {
	// Store is the store handed to the ledger, cache included when enabled
	Store usage.Store
	// Redis is the shared cache client, nil when redis is not configured
	Redis *redis.Client
	// Type is the configured backend name
	Type string

	cancel context.CancelFunc
}

// Open builds the store described by the storage and cache configuration.
// Background routines started for the backend stop when Close is called.
func Open(ctx context.Context, storageCfg config.StorageConfig, cacheCfg config.CacheConfig, logger *logrus.Logger, metrics *observability.Metrics) (*Backend, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	routineCtx, cancel := context.WithCancel(context.Background())

	store, err := openStore(ctx, routineCtx, storageCfg, logger, metrics)
	if err != nil {
		cancel()
		return nil, err
	}

	b := &Backend{
		Store:  store,
		Type:   storageCfg.Type,
		cancel: cancel,
	}

	if !cacheCfg.Enabled {
		return b, nil
	}

	opts := []cache.Option{cache.WithLogger(logger), cache.WithMetrics(metrics)}
	if cacheCfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cacheCfg.RedisURL, cache.RedisOptions{
			Password:   cacheCfg.RedisPassword,
			DB:         cacheCfg.RedisDB,
			MaxRetries: cacheCfg.RedisMaxRetries,
			PoolSize:   cacheCfg.RedisPoolSize,
		})
		if err != nil {
			cancel()
			store.Close()
			return nil, err
		}
		b.Redis = client
		opts = append(opts, cache.WithRedis(client))
	}

	b.Store = cache.New(store, cache.Config{
		LocalSize: cacheCfg.LocalSize,
		LocalTTL:  cacheCfg.LocalTTL,
		RedisTTL:  cacheCfg.RedisTTL,
	}, opts...)

	logger.WithFields(logrus.Fields{
		"local_size": cacheCfg.LocalSize,
		"redis":      b.Redis != nil,
	}).Info("Subscription cache enabled")

	return b, nil
}

func openStore(ctx, routineCtx context.Context, cfg config.StorageConfig, logger *logrus.Logger, metrics *observability.Metrics) (usage.Store, error) {
	switch cfg.Type {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; usage counters are lost on restart")
		return memory.New(), nil

	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, sqlite.WithMetrics(metrics))
		if err != nil {
			return nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("Using SQLite storage")
		return store, nil

	case config.StoragePostgres:
		cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
			PrimaryURL:  cfg.PostgresURL,
			ReplicaURLs: cfg.ReplicaURLs(),
			MaxConns:    cfg.PostgresMaxConns,
			MinConns:    cfg.PostgresMinConns,
			Timeout:     cfg.PostgresTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

		if err := postgres.EnsureSchema(ctx, cm.Primary()); err != nil {
			cm.Close()
			return nil, err
		}

		cm.StartHealthCheckRoutine(routineCtx, replicaCheckInterval)
		logger.Info("Using PostgreSQL storage")
		return postgres.Open(cm, postgres.WithMetrics(metrics)), nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Ping checks the store
func (b *Backend) Ping(ctx context.Context) error {
	return b.Store.Ping(ctx)
}

// Close stops background routines and closes the store and redis client
func (b *Backend) Close() error {
	b.cancel()

	var errs []error
	if err := b.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
