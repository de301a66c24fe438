// Package cache wraps a usage.Store with a two-tier read-through cache for
// subscription records: an in-process expirable LRU in front of a shared redis cache.
//
// Usage counters are never cached; every counter read and write goes to the wrapped
// store. Writes to a subscription record invalidate both tiers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/pricebulk/pricebulk/pkg/usage"
	"github.com/sirupsen/logrus"
)

// Store is a usage.Store with cached subscription lookups
type Store struct {
	usage.Store

	local   *lru.LRU[string, *usage.SubscriptionInfo]
	redis   *redis.Client
	config  Config
	metrics *observability.Metrics
	logger  *logrus.Logger

	// epoch is bumped by every invalidation. A fill whose epoch changed while it
	// read the record is evicted again.
	epoch atomic.Uint64
}

// Option configures a Store
type Option func(*Store)

// WithRedis enables the shared redis tier
func WithRedis(client *redis.Client) Option {
	return func(s *Store) {
		s.redis = client
	}
}

// WithMetrics records cache hits and misses
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// WithLogger sets the logger used for redis failures
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps backend with a subscription cache
func New(backend usage.Store, config Config, opts ...Option) *Store {
	config = config.withDefaults()

	s := &Store{
		Store:  backend,
		local:  lru.NewLRU[string, *usage.SubscriptionInfo](config.LocalSize, nil, config.LocalTTL),
		config: config,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ usage.Store = (*Store)(nil)

func (s *Store) key(shop string) string {
	return s.config.KeyPrefix + shop
}

func clone(info *usage.SubscriptionInfo) *usage.SubscriptionInfo {
	c := *info
	if info.SubscriptionID != nil {
		id := *info.SubscriptionID
		c.SubscriptionID = &id
	}
	return &c
}

// GetSubscriptionInfo reads through the local and redis tiers before the backend.
// Missing records are not cached.
func (s *Store) GetSubscriptionInfo(ctx context.Context, shop string) (*usage.SubscriptionInfo, error) {
	if info, ok := s.local.Get(shop); ok {
		s.metrics.RecordCacheLookup("local", true)
		return clone(info), nil
	}
	s.metrics.RecordCacheLookup("local", false)

	epoch := s.epoch.Load()
	if info := s.getRemote(ctx, shop); info != nil {
		s.local.Add(shop, clone(info))
		if s.epoch.Load() != epoch {
			s.local.Remove(shop)
		}
		return info, nil
	}

	info, err := s.Store.GetSubscriptionInfo(ctx, shop)
	if err != nil {
		return nil, err
	}

	s.put(ctx, info, epoch)
	return info, nil
}

// getRemote returns nil on a miss. Redis failures are logged and treated as misses.
func (s *Store) getRemote(ctx context.Context, shop string) *usage.SubscriptionInfo {
	if s.redis == nil {
		return nil
	}

	data, err := s.redis.Get(ctx, s.key(shop)).Bytes()
	if err == redis.Nil {
		s.metrics.RecordCacheLookup("redis", false)
		return nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("shop", shop).Warn("Subscription cache read failed")
		return nil
	}

	var info usage.SubscriptionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		s.logger.WithError(err).WithField("shop", shop).Warn("Dropping corrupt subscription cache entry")
		s.redis.Del(ctx, s.key(shop))
		return nil
	}

	s.metrics.RecordCacheLookup("redis", true)
	return &info
}

// put caches a record read at epoch. If an invalidation ran in the meantime the
// record may predate it, so both tiers are cleared again.
func (s *Store) put(ctx context.Context, info *usage.SubscriptionInfo, epoch uint64) {
	s.local.Add(info.Shop, clone(info))

	if s.redis != nil {
		if data, err := json.Marshal(info); err != nil {
			s.logger.WithError(err).Warn("Failed to marshal subscription info")
		} else if err := s.redis.Set(ctx, s.key(info.Shop), data, s.config.RedisTTL).Err(); err != nil {
			s.logger.WithError(err).WithField("shop", info.Shop).Warn("Subscription cache write failed")
		}
	}

	if s.epoch.Load() != epoch {
		if err := s.evict(ctx, info.Shop); err != nil {
			s.logger.WithError(err).WithField("shop", info.Shop).Warn("Subscription cache invalidation failed")
		}
	}
}

// Invalidate drops the shop from both tiers
func (s *Store) Invalidate(ctx context.Context, shop string) error {
	s.epoch.Add(1)
	return s.evict(ctx, shop)
}

func (s *Store) evict(ctx context.Context, shop string) error {
	s.local.Remove(shop)

	if s.redis == nil {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(shop)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}
	return nil
}

func (s *Store) invalidate(ctx context.Context, shop string) {
	if err := s.Invalidate(ctx, shop); err != nil {
		s.logger.WithError(err).WithField("shop", shop).Warn("Subscription cache invalidation failed")
	}
}

// CreateSubscriptionInfo writes through to the backend
func (s *Store) CreateSubscriptionInfo(ctx context.Context, info *usage.SubscriptionInfo) error {
	if err := s.Store.CreateSubscriptionInfo(ctx, info); err != nil {
		return err
	}
	s.invalidate(ctx, info.Shop)
	return nil
}

// UpdateSubscriptionPlan writes through to the backend and refreshes the cache
func (s *Store) UpdateSubscriptionPlan(ctx context.Context, shop string, subscriptionID *string, planName string) (*usage.SubscriptionInfo, error) {
	s.invalidate(ctx, shop)
	epoch := s.epoch.Load()

	info, err := s.Store.UpdateSubscriptionPlan(ctx, shop, subscriptionID, planName)
	if err != nil {
		return nil, err
	}

	s.put(ctx, info, epoch)
	return info, nil
}

// DeleteShopData deletes from the backend and evicts the shop
func (s *Store) DeleteShopData(ctx context.Context, shop string) error {
	err := s.Store.DeleteShopData(ctx, shop)
	s.invalidate(ctx, shop)
	return err
}

