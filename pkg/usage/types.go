package usage

import "time"

// SubscriptionInfo is the per-shop subscription record. BillingCycleDay is set once
// when the record is created and never changes afterwards.
type SubscriptionInfo struct {
	Shop            string    `json:"shop"`
	SubscriptionID  *string   `json:"subscription_id,omitempty"`
	PlanName        string    `json:"plan_name"`
	BillingCycleDay int       `json:"billing_cycle_day"`
	StartedAt       time.Time `json:"started_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UsageRecord holds the usage counters of one shop for one billing period
type UsageRecord struct {
	Shop             string    `json:"shop"`
	BillingPeriod    string    `json:"billing_period"`
	PriceUpdates     int64     `json:"price_updates"`
	CompareAtUpdates int64     `json:"compare_at_updates"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Subscription is the platform's view of an active app subscription
type Subscription struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// CurrentUsage is the usage record of the active billing period
type CurrentUsage struct {
	Record        *UsageRecord `json:"usage"`
	BillingPeriod string       `json:"billing_period"`
	NextResetDate time.Time    `json:"next_reset_date"`
}

// LimitType names the counter that caused a limit rejection
type LimitType string

const (
	LimitTypePrice     LimitType = "price"
	LimitTypeCompareAt LimitType = "compareAt"
)

// LimitCheck is the outcome of a limit evaluation. A refused check is a normal
// result, not an error.
type LimitCheck struct {
	Allowed   bool      `json:"allowed"`
	Type      LimitType `json:"type,omitempty"`
	Limit     int64     `json:"limit"`
	Current   int64     `json:"current"`
	Attempted int64     `json:"attempted"`
}

// UsageStats is the usage summary shown to merchants
type UsageStats struct {
	Plan               Plan       `json:"plan"`
	BillingPeriod      string     `json:"billing_period"`
	PriceUpdates       int64      `json:"price_updates"`
	CompareAtUpdates   int64      `json:"compare_at_updates"`
	Limits             PlanLimits `json:"limits"`
	PriceRemaining     *int64     `json:"price_remaining"`
	CompareAtRemaining *int64     `json:"compare_at_remaining"`
	NextResetDate      time.Time  `json:"next_reset_date"`
}
