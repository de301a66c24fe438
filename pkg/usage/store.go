package usage

import "context"

// SubscriptionStore persists SubscriptionInfo records keyed by shop
type SubscriptionStore interface {
	// GetSubscriptionInfo returns ErrNotFound when the shop has no record
	GetSubscriptionInfo(ctx context.Context, shop string) (*SubscriptionInfo, error)
	// CreateSubscriptionInfo returns ErrAlreadyExists when the shop already has a record
	CreateSubscriptionInfo(ctx context.Context, info *SubscriptionInfo) error
	// UpdateSubscriptionPlan changes only the subscription id and plan name
	UpdateSubscriptionPlan(ctx context.Context, shop string, subscriptionID *string, planName string) (*SubscriptionInfo, error)
	ListSubscriptionInfos(ctx context.Context) ([]*SubscriptionInfo, error)
}

// UsageStore persists UsageRecord rows keyed by (shop, billing period)
type UsageStore interface {
	// GetOrCreateUsageRecord returns the record, creating it with zero counters if missing
	GetOrCreateUsageRecord(ctx context.Context, shop, period string) (*UsageRecord, error)
	// IncrementUsage adds the deltas in a single atomic upsert
	IncrementUsage(ctx context.Context, shop, period string, priceDelta, compareAtDelta int64) (*UsageRecord, error)
	// ReserveUsage checks the deltas against the limits and applies them only if the
	// check passes, atomically with respect to other writers of the same record
	ReserveUsage(ctx context.Context, shop, period string, priceDelta, compareAtDelta int64, limits PlanLimits) (*LimitCheck, error)
	// ListUsageRecords returns the shop's records, newest period first
	ListUsageRecords(ctx context.Context, shop string, limit int) ([]*UsageRecord, error)
}

// Store is the storage contract of the ledger
type Store interface {
	SubscriptionStore
	UsageStore

	// DeleteShopData removes every subscription and usage row of the shop
	DeleteShopData(ctx context.Context, shop string) error
	Ping(ctx context.Context) error
	Close() error
}

// MaxDelta bounds a single counter delta. Counters stay far from int64 overflow even
// on unlimited plans.
const MaxDelta int64 = 1_000_000_000

// ValidateDeltas returns ErrInvalidDelta unless both deltas are in [0, MaxDelta]
func ValidateDeltas(priceDelta, compareAtDelta int64) error {
	for _, d := range []int64{priceDelta, compareAtDelta} {
		if d < 0 || d > MaxDelta {
			return ErrInvalidDelta
		}
	}
	return nil
}

// EvaluateLimits applies the limit check order to a usage snapshot. Stores use it
// inside their reserve transactions so every backend decides identically.
func EvaluateLimits(limits PlanLimits, current *UsageRecord, priceDelta, compareAtDelta int64) *LimitCheck {
	if limits.Unlimited() {
		return &LimitCheck{Allowed: true}
	}

	// deltas are compared with the headroom, never added to current
	if priceDelta > *limits.Price-current.PriceUpdates {
		return &LimitCheck{
			Allowed:   false,
			Type:      LimitTypePrice,
			Limit:     *limits.Price,
			Current:   current.PriceUpdates,
			Attempted: priceDelta,
		}
	}

	if limits.CompareAt != nil && compareAtDelta > *limits.CompareAt-current.CompareAtUpdates {
		return &LimitCheck{
			Allowed:   false,
			Type:      LimitTypeCompareAt,
			Limit:     *limits.CompareAt,
			Current:   current.CompareAtUpdates,
			Attempted: compareAtDelta,
		}
	}

	return &LimitCheck{Allowed: true}
}
