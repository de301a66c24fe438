// Package memory provides an in-process usage.Store for tests and single-node development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pricebulk/pricebulk/pkg/usage"
)

type usageKey struct {
	shop   string
	period string
}

// Store is a mutex-guarded usage.Store. Returned records are copies.
type Store struct {
	mu            sync.Mutex
	subscriptions map[string]*usage.SubscriptionInfo
	records       map[usageKey]*usage.UsageRecord
	now           func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		subscriptions: make(map[string]*usage.SubscriptionInfo),
		records:       make(map[usageKey]*usage.UsageRecord),
		now:           time.Now,
	}
}

var _ usage.Store = (*Store)(nil)

func copyInfo(info *usage.SubscriptionInfo) *usage.SubscriptionInfo {
	c := *info
	if info.SubscriptionID != nil {
		id := *info.SubscriptionID
		c.SubscriptionID = &id
	}
	return &c
}

func copyRecord(r *usage.UsageRecord) *usage.UsageRecord {
	c := *r
	return &c
}

func (s *Store) GetSubscriptionInfo(ctx context.Context, shop string) (*usage.SubscriptionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.subscriptions[shop]
	if !ok {
		return nil, usage.ErrNotFound
	}
	return copyInfo(info), nil
}

func (s *Store) CreateSubscriptionInfo(ctx context.Context, info *usage.SubscriptionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[info.Shop]; ok {
		return usage.ErrAlreadyExists
	}

	now := s.now().UTC()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = now
	}
	s.subscriptions[info.Shop] = copyInfo(info)
	return nil
}

func (s *Store) UpdateSubscriptionPlan(ctx context.Context, shop string, subscriptionID *string, planName string) (*usage.SubscriptionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.subscriptions[shop]
	if !ok {
		return nil, usage.ErrNotFound
	}

	info.SubscriptionID = nil
	if subscriptionID != nil {
		id := *subscriptionID
		info.SubscriptionID = &id
	}
	info.PlanName = planName
	info.UpdatedAt = s.now().UTC()

	return copyInfo(info), nil
}

func (s *Store) ListSubscriptionInfos(ctx context.Context) ([]*usage.SubscriptionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]*usage.SubscriptionInfo, 0, len(s.subscriptions))
	for _, info := range s.subscriptions {
		infos = append(infos, copyInfo(info))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Shop < infos[j].Shop
	})
	return infos, nil
}

// record returns the live record for the key, creating it with zero counters. Callers hold mu.
func (s *Store) record(shop, period string) *usage.UsageRecord {
	key := usageKey{shop: shop, period: period}
	r, ok := s.records[key]
	if !ok {
		now := s.now().UTC()
		r = &usage.UsageRecord{
			Shop:          shop,
			BillingPeriod: period,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.records[key] = r
	}
	return r
}

func (s *Store) GetOrCreateUsageRecord(ctx context.Context, shop, period string) (*usage.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyRecord(s.record(shop, period)), nil
}

func (s *Store) IncrementUsage(ctx context.Context, shop, period string, priceDelta, compareAtDelta int64) (*usage.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.record(shop, period)
	r.PriceUpdates += priceDelta
	r.CompareAtUpdates += compareAtDelta
	r.UpdatedAt = s.now().UTC()

	return copyRecord(r), nil
}

func (s *Store) ReserveUsage(ctx context.Context, shop, period string, priceDelta, compareAtDelta int64, limits usage.PlanLimits) (*usage.LimitCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.record(shop, period)
	check := usage.EvaluateLimits(limits, r, priceDelta, compareAtDelta)
	if check.Allowed {
		r.PriceUpdates += priceDelta
		r.CompareAtUpdates += compareAtDelta
		r.UpdatedAt = s.now().UTC()
	}
	return check, nil
}

func (s *Store) ListUsageRecords(ctx context.Context, shop string, limit int) ([]*usage.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*usage.UsageRecord
	for key, r := range s.records {
		if key.shop == shop {
			records = append(records, copyRecord(r))
		}
	}
	// period keys are ISO dates, so string order is date order
	sort.Slice(records, func(i, j int) bool {
		return records[i].BillingPeriod > records[j].BillingPeriod
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) DeleteShopData(ctx context.Context, shop string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, shop)
	for key := range s.records {
		if key.shop == shop {
			delete(s.records, key)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}
