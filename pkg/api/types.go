package api

import (
	"context"
	"time"

	"github.com/pricebulk/pricebulk/pkg/usage"
)

// Ledger is the subset of usage.Ledger the handlers depend on
type Ledger interface {
	GetOrCreateSubscriptionInfo(ctx context.Context, shop string, sub *usage.Subscription) (*usage.SubscriptionInfo, error)
	SubscriptionInfo(ctx context.Context, shop string) (*usage.SubscriptionInfo, error)
	CurrentUsage(ctx context.Context, shop string) (*usage.CurrentUsage, error)
	IncrementUsage(ctx context.Context, shop string, priceDelta, compareAtDelta int64) (*usage.UsageRecord, error)
	CheckUsageLimit(ctx context.Context, shop, planName string, newPrice, newCompareAt int64) (*usage.LimitCheck, error)
	ReserveUsage(ctx context.Context, shop, planName string, price, compareAt int64) (*usage.LimitCheck, error)
	UsageStats(ctx context.Context, shop, planName string) (*usage.UsageStats, error)
	UsageHistory(ctx context.Context, shop string, limit int) ([]*usage.UsageRecord, error)
}

// SubscriptionRequest is the body of POST /api/v1/subscription. An empty body means
// the shop has no active subscription.
type SubscriptionRequest struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (r SubscriptionRequest) subscription() *usage.Subscription {
	if r.ID == "" && r.Name == "" && r.CreatedAt == nil {
		return nil
	}
	return &usage.Subscription{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
}

// UsageRequest is the body of the check, increment and reserve endpoints.
// Plan is ignored by increment.
type UsageRequest struct {
	Plan             string `json:"plan,omitempty"`
	PriceUpdates     int64  `json:"price_updates"`
	CompareAtUpdates int64  `json:"compare_at_updates"`
}

// HistoryResponse is the body of GET /api/v1/usage/history
type HistoryResponse struct {
	Records []*usage.UsageRecord `json:"records"`
}

// PlansResponse is the body of GET /api/v1/plans
type PlansResponse struct {
	Plans []usage.Tier `json:"plans"`
}
