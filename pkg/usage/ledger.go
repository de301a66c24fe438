package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Ledger tracks per-shop usage counters against billing periods and plan limits
type Ledger struct {
	store   Store
	now     func() time.Time
	logger  *logrus.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics *observability.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = metrics
	}
}

// WithTracer sets the tracer used for ledger spans
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Ledger) {
		l.tracer = tracer
	}
}

// New creates a ledger on top of the given store
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: logrus.StandardLogger(),
		tracer: noop.NewTracerProvider().Tracer(observability.TracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) startSpan(ctx context.Context, name, shop string) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, "usage."+name, trace.WithAttributes(attribute.String("shop", shop)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetOrCreateSubscriptionInfo returns the shop's subscription record, creating it on
// first observation. The anchor day comes from sub.CreatedAt when present, otherwise
// from the current time. When sub carries a different subscription id than the stored
// one, the id and plan name are updated in place. At most one write happens per call.
func (l *Ledger) GetOrCreateSubscriptionInfo(ctx context.Context, shop string, sub *Subscription) (info *SubscriptionInfo, err error) {
	ctx, span := l.startSpan(ctx, "GetOrCreateSubscriptionInfo", shop)
	defer func() { endSpan(span, err) }()

	if shop == "" {
		return nil, ErrInvalidShop
	}

	info, err = l.store.GetSubscriptionInfo(ctx, shop)
	if err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("failed to get subscription info: %w", err)
	}

	if info == nil {
		info, err = l.createSubscriptionInfo(ctx, shop, sub)
		if err == nil || !errors.Is(err, ErrAlreadyExists) {
			return info, err
		}
		// Lost the create race; continue with the winner's row.
		info, err = l.store.GetSubscriptionInfo(ctx, shop)
		if err != nil {
			return nil, fmt.Errorf("failed to get subscription info: %w", err)
		}
	}

	if sub == nil || stringValue(info.SubscriptionID) == sub.ID {
		return info, nil
	}

	updated, err := l.store.UpdateSubscriptionPlan(ctx, shop, optionalString(sub.ID), planNameOf(sub))
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription plan: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"shop":            shop,
		"subscription_id": sub.ID,
		"plan":            updated.PlanName,
	}).Info("Subscription plan changed")

	return updated, nil
}

func (l *Ledger) createSubscriptionInfo(ctx context.Context, shop string, sub *Subscription) (*SubscriptionInfo, error) {
	now := l.now().UTC()
	anchor := now
	if sub != nil && sub.CreatedAt != nil {
		anchor = sub.CreatedAt.UTC()
	}

	info := &SubscriptionInfo{
		Shop:            shop,
		PlanName:        planNameOf(sub),
		BillingCycleDay: anchor.Day(),
		StartedAt:       anchor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if sub != nil {
		info.SubscriptionID = optionalString(sub.ID)
	}

	if err := l.store.CreateSubscriptionInfo(ctx, info); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create subscription info: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"shop":              shop,
		"plan":              info.PlanName,
		"billing_cycle_day": info.BillingCycleDay,
	}).Info("Subscription info created")

	return info, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func planNameOf(sub *Subscription) string {
	if sub == nil || sub.Name == "" {
		return string(PlanFree)
	}
	return sub.Name
}

// subscriptionInfo loads the shop's record, mapping a missing record to ConfigurationError
func (l *Ledger) subscriptionInfo(ctx context.Context, shop string) (*SubscriptionInfo, error) {
	if shop == "" {
		return nil, ErrInvalidShop
	}
	info, err := l.store.GetSubscriptionInfo(ctx, shop)
	if err != nil {
		if IsNotFound(err) {
			return nil, &ConfigurationError{Shop: shop}
		}
		return nil, fmt.Errorf("failed to get subscription info: %w", err)
	}
	return info, nil
}

// SubscriptionInfo returns the stored subscription record of the shop.
// A shop without one yields a ConfigurationError.
func (l *Ledger) SubscriptionInfo(ctx context.Context, shop string) (info *SubscriptionInfo, err error) {
	ctx, span := l.startSpan(ctx, "SubscriptionInfo", shop)
	defer func() { endSpan(span, err) }()

	return l.subscriptionInfo(ctx, shop)
}

// CurrentUsage returns the usage record of the shop's active billing period, creating
// a zeroed record when the period has none yet.
func (l *Ledger) CurrentUsage(ctx context.Context, shop string) (current *CurrentUsage, err error) {
	ctx, span := l.startSpan(ctx, "CurrentUsage", shop)
	defer func() { endSpan(span, err) }()

	return l.currentUsage(ctx, shop)
}

func (l *Ledger) currentUsage(ctx context.Context, shop string) (*CurrentUsage, error) {
	info, err := l.subscriptionInfo(ctx, shop)
	if err != nil {
		return nil, err
	}

	now := l.now()
	period := PeriodKey(info.BillingCycleDay, now)

	record, err := l.store.GetOrCreateUsageRecord(ctx, shop, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}

	return &CurrentUsage{
		Record:        record,
		BillingPeriod: period,
		NextResetDate: NextResetDate(info.BillingCycleDay, now),
	}, nil
}

// IncrementUsage adds the deltas to the counters of the active billing period
func (l *Ledger) IncrementUsage(ctx context.Context, shop string, priceDelta, compareAtDelta int64) (record *UsageRecord, err error) {
	ctx, span := l.startSpan(ctx, "IncrementUsage", shop)
	defer func() { endSpan(span, err) }()

	if err := ValidateDeltas(priceDelta, compareAtDelta); err != nil {
		return nil, err
	}

	info, err := l.subscriptionInfo(ctx, shop)
	if err != nil {
		return nil, err
	}
	period := PeriodKey(info.BillingCycleDay, l.now())

	record, err = l.store.IncrementUsage(ctx, shop, period, priceDelta, compareAtDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	l.metrics.RecordUsageIncrement(priceDelta, compareAtDelta)
	l.logger.WithFields(logrus.Fields{
		"shop":               shop,
		"billing_period":     period,
		"price_updates":      record.PriceUpdates,
		"compare_at_updates": record.CompareAtUpdates,
	}).Debug("Usage incremented")

	return record, nil
}

// CheckUsageLimit reports whether the shop may perform the given number of updates
// under planName. It does not change any counter; callers record the work with
// IncrementUsage afterwards. Use ReserveUsage to check and record atomically.
func (l *Ledger) CheckUsageLimit(ctx context.Context, shop, planName string, newPrice, newCompareAt int64) (check *LimitCheck, err error) {
	ctx, span := l.startSpan(ctx, "CheckUsageLimit", shop)
	defer func() { endSpan(span, err) }()

	if err := ValidateDeltas(newPrice, newCompareAt); err != nil {
		return nil, err
	}

	plan := ParsePlan(planName)
	limits := TierFor(plan).Limits()

	current, err := l.currentUsage(ctx, shop)
	if err != nil {
		return nil, err
	}

	check = EvaluateLimits(limits, current.Record, newPrice, newCompareAt)
	l.metrics.RecordLimitDecision(string(plan), string(check.Type))
	return check, nil
}

// ReserveUsage checks the requested updates against the plan limits and records them
// in the same store transaction. Counters change only when the check allows it.
func (l *Ledger) ReserveUsage(ctx context.Context, shop, planName string, price, compareAt int64) (check *LimitCheck, err error) {
	ctx, span := l.startSpan(ctx, "ReserveUsage", shop)
	defer func() { endSpan(span, err) }()

	if err := ValidateDeltas(price, compareAt); err != nil {
		return nil, err
	}

	info, err := l.subscriptionInfo(ctx, shop)
	if err != nil {
		return nil, err
	}

	plan := ParsePlan(planName)
	period := PeriodKey(info.BillingCycleDay, l.now())

	check, err = l.store.ReserveUsage(ctx, shop, period, price, compareAt, TierFor(plan).Limits())
	if err != nil {
		return nil, fmt.Errorf("failed to reserve usage: %w", err)
	}

	l.metrics.RecordLimitDecision(string(plan), string(check.Type))
	if check.Allowed {
		l.metrics.RecordUsageIncrement(price, compareAt)
	} else {
		l.logger.WithFields(logrus.Fields{
			"shop":      shop,
			"plan":      plan,
			"type":      check.Type,
			"limit":     check.Limit,
			"current":   check.Current,
			"attempted": check.Attempted,
		}).Info("Usage reservation refused")
	}

	return check, nil
}

// UsageStats summarizes the shop's usage for the active period under planName.
// Remaining counts are nil for unlimited plans and may be negative when usage was
// recorded past the limit.
func (l *Ledger) UsageStats(ctx context.Context, shop, planName string) (stats *UsageStats, err error) {
	ctx, span := l.startSpan(ctx, "UsageStats", shop)
	defer func() { endSpan(span, err) }()

	current, err := l.currentUsage(ctx, shop)
	if err != nil {
		return nil, err
	}

	plan := ParsePlan(planName)
	limits := TierFor(plan).Limits()

	stats = &UsageStats{
		Plan:             plan,
		BillingPeriod:    current.BillingPeriod,
		PriceUpdates:     current.Record.PriceUpdates,
		CompareAtUpdates: current.Record.CompareAtUpdates,
		Limits:           limits,
		NextResetDate:    current.NextResetDate,
	}
	if limits.Price != nil {
		stats.PriceRemaining = limit(*limits.Price - current.Record.PriceUpdates)
	}
	if limits.CompareAt != nil {
		stats.CompareAtRemaining = limit(*limits.CompareAt - current.Record.CompareAtUpdates)
	}

	return stats, nil
}

// UsageHistory returns up to limit usage records of the shop, newest period first
func (l *Ledger) UsageHistory(ctx context.Context, shop string, limit int) (records []*UsageRecord, err error) {
	ctx, span := l.startSpan(ctx, "UsageHistory", shop)
	defer func() { endSpan(span, err) }()

	if shop == "" {
		return nil, ErrInvalidShop
	}
	if limit <= 0 {
		limit = 12
	}

	records, err = l.store.ListUsageRecords(ctx, shop, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}

// RedactShop deletes every subscription and usage row of the shop
func (l *Ledger) RedactShop(ctx context.Context, shop string) (err error) {
	ctx, span := l.startSpan(ctx, "RedactShop", shop)
	defer func() { endSpan(span, err) }()

	if shop == "" {
		return ErrInvalidShop
	}

	if err := l.store.DeleteShopData(ctx, shop); err != nil {
		return fmt.Errorf("failed to delete shop data: %w", err)
	}

	l.logger.WithField("shop", shop).Info("Shop data redacted")
	return nil
}

// PlanCounts returns the number of shops per plan, keyed by plan name
func (l *Ledger) PlanCounts(ctx context.Context) (map[string]int, error) {
	infos, err := l.store.ListSubscriptionInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription infos: %w", err)
	}

	counts := make(map[string]int, len(Tiers))
	for _, t := range Tiers {
		counts[string(t.Plan)] = 0
	}
	for _, info := range infos {
		counts[string(ParsePlan(info.PlanName))]++
	}
	return counts, nil
}
