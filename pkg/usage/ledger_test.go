package usage_test

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/pricebulk/pricebulk/pkg/storage/memory"
	"github.com/pricebulk/pricebulk/pkg/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const shop = "s1.myshopify.com"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// countingStore counts subscription writes
type countingStore struct {
	*memory.Store
	creates atomic.Int32
	updates atomic.Int32
}

func (s *countingStore) CreateSubscriptionInfo(ctx context.Context, info *usage.SubscriptionInfo) error {
	s.creates.Add(1)
	return s.Store.CreateSubscriptionInfo(ctx, info)
}

func (s *countingStore) UpdateSubscriptionPlan(ctx context.Context, shop string, id *string, planName string) (*usage.SubscriptionInfo, error) {
	s.updates.Add(1)
	return s.Store.UpdateSubscriptionPlan(ctx, shop, id, planName)
}

func newLedger(t *testing.T, now time.Time, opts ...usage.Option) (*usage.Ledger, *countingStore, *clock) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := &countingStore{Store: memory.New()}
	c := &clock{now: now}
	opts = append([]usage.Option{usage.WithClock(c.Now), usage.WithLogger(logger)}, opts...)
	return usage.New(store, opts...), store, c
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func TestGetOrCreateSubscriptionInfo(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC)

	t.Run("without subscription", func(t *testing.T) {
		ledger, _, _ := newLedger(t, now)

		info, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
		require.NoError(t, err)
		assert.Equal(t, shop, info.Shop)
		assert.Equal(t, "Free", info.PlanName)
		assert.Equal(t, 20, info.BillingCycleDay)
		assert.Equal(t, now, info.StartedAt)
		assert.Nil(t, info.SubscriptionID)
	})

	t.Run("anchor from subscription", func(t *testing.T) {
		ledger, _, _ := newLedger(t, now)
		created := time.Date(2025, time.November, 15, 17, 45, 0, 0, time.UTC)

		info, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{
			ID:        "gid://shopify/AppSubscription/1",
			Name:      "Starter",
			CreatedAt: &created,
		})
		require.NoError(t, err)
		assert.Equal(t, "Starter", info.PlanName)
		assert.Equal(t, 15, info.BillingCycleDay)
		assert.Equal(t, created, info.StartedAt)
		require.NotNil(t, info.SubscriptionID)
		assert.Equal(t, "gid://shopify/AppSubscription/1", *info.SubscriptionID)
	})

	t.Run("anchor uses the UTC calendar day", func(t *testing.T) {
		ledger, _, _ := newLedger(t, now)
		created := time.Date(2025, time.January, 31, 23, 0, 0, 0, time.FixedZone("EST", -5*60*60))

		info, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{ID: "1", CreatedAt: &created})
		require.NoError(t, err)
		assert.Equal(t, 1, info.BillingCycleDay)
		assert.Equal(t, "Free", info.PlanName)
	})

	t.Run("idempotent for the same subscription", func(t *testing.T) {
		ledger, store, _ := newLedger(t, now)
		sub := &usage.Subscription{ID: "gid://shopify/AppSubscription/1", Name: "Starter", CreatedAt: ptrTime(now)}

		first, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, sub)
		require.NoError(t, err)
		second, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, sub)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), store.creates.Load())
		assert.Equal(t, int32(0), store.updates.Load())

		infos, err := store.ListSubscriptionInfos(ctx)
		require.NoError(t, err)
		assert.Len(t, infos, 1)
	})

	t.Run("nil subscription leaves the record alone", func(t *testing.T) {
		ledger, store, _ := newLedger(t, now)

		_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{ID: "1", Name: "Growth"})
		require.NoError(t, err)
		info, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
		require.NoError(t, err)

		assert.Equal(t, "Growth", info.PlanName)
		assert.Equal(t, int32(0), store.updates.Load())
	})

	t.Run("subscription without id matches a record without id", func(t *testing.T) {
		ledger, store, _ := newLedger(t, now)

		_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
		require.NoError(t, err)
		_, err = ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{Name: "Starter"})
		require.NoError(t, err)

		assert.Equal(t, int32(0), store.updates.Load())
	})

	t.Run("plan change keeps anchor and start", func(t *testing.T) {
		ledger, store, c := newLedger(t, now)
		created := time.Date(2025, time.December, 3, 0, 0, 0, 0, time.UTC)

		original, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{ID: "1", Name: "Starter", CreatedAt: &created})
		require.NoError(t, err)

		c.Set(now.AddDate(0, 1, 0))
		upgraded, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{ID: "2", Name: "Growth Plan", CreatedAt: ptrTime(now)})
		require.NoError(t, err)

		assert.Equal(t, "Growth Plan", upgraded.PlanName)
		require.NotNil(t, upgraded.SubscriptionID)
		assert.Equal(t, "2", *upgraded.SubscriptionID)
		assert.Equal(t, original.BillingCycleDay, upgraded.BillingCycleDay)
		assert.Equal(t, original.StartedAt, upgraded.StartedAt)
		assert.Equal(t, int32(1), store.updates.Load())
	})

	t.Run("cancelled subscription falls back to Free", func(t *testing.T) {
		ledger, _, _ := newLedger(t, now)

		_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{ID: "1", Name: "Starter"})
		require.NoError(t, err)
		info, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{})
		require.NoError(t, err)

		assert.Equal(t, "Free", info.PlanName)
		assert.Nil(t, info.SubscriptionID)
	})

	t.Run("empty shop", func(t *testing.T) {
		ledger, _, _ := newLedger(t, now)

		_, err := ledger.GetOrCreateSubscriptionInfo(ctx, "", nil)
		assert.ErrorIs(t, err, usage.ErrInvalidShop)
	})
}

// racingStore hides the record from the first lookup, as if another request
// created it between our read and our insert.
type racingStore struct {
	*memory.Store
	hidden atomic.Bool
}

func (s *racingStore) GetSubscriptionInfo(ctx context.Context, shop string) (*usage.SubscriptionInfo, error) {
	if s.hidden.CompareAndSwap(true, false) {
		return nil, usage.ErrNotFound
	}
	return s.Store.GetSubscriptionInfo(ctx, shop)
}

func TestGetOrCreateSubscriptionInfo_LostCreateRace(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Store: memory.New()}
	require.NoError(t, store.CreateSubscriptionInfo(ctx, &usage.SubscriptionInfo{
		Shop:            shop,
		PlanName:        "Starter",
		BillingCycleDay: 7,
	}))
	store.hidden.Store(true)

	ledger := usage.New(store)
	info, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)
	assert.Equal(t, "Starter", info.PlanName)
	assert.Equal(t, 7, info.BillingCycleDay)
}

func TestMissingSubscriptionInfo(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Now())

	calls := map[string]func() error{
		"SubscriptionInfo": func() error {
			_, err := ledger.SubscriptionInfo(ctx, shop)
			return err
		},
		"CurrentUsage": func() error {
			_, err := ledger.CurrentUsage(ctx, shop)
			return err
		},
		"IncrementUsage": func() error {
			_, err := ledger.IncrementUsage(ctx, shop, 1, 1)
			return err
		},
		"CheckUsageLimit": func() error {
			_, err := ledger.CheckUsageLimit(ctx, shop, "Growth", 1, 1)
			return err
		},
		"ReserveUsage": func() error {
			_, err := ledger.ReserveUsage(ctx, shop, "Free", 1, 1)
			return err
		},
		"UsageStats": func() error {
			_, err := ledger.UsageStats(ctx, shop, "Free")
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.True(t, usage.IsConfigurationError(err))
			assert.EqualError(t, err, "subscription info not found for shop "+shop)
		})
	}
}

func TestCurrentUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC)
	ledger, _, _ := newLedger(t, now)

	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{ID: "1", CreatedAt: ptrTime(time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	current, err := ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15", current.BillingPeriod)
	assert.Equal(t, time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC), current.NextResetDate)
	assert.Equal(t, shop, current.Record.Shop)
	assert.Equal(t, "2026-01-15", current.Record.BillingPeriod)
	assert.Zero(t, current.Record.PriceUpdates)
	assert.Zero(t, current.Record.CompareAtUpdates)
}

func TestIncrementUsage(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)

	record, err := ledger.IncrementUsage(ctx, shop, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), record.PriceUpdates)
	assert.Equal(t, int64(2), record.CompareAtUpdates)

	current, err := ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, current.Record.PriceUpdates, int64(3))
	assert.GreaterOrEqual(t, current.Record.CompareAtUpdates, int64(2))

	_, err = ledger.IncrementUsage(ctx, shop, 5, 4)
	require.NoError(t, err)
	current, err = ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(8), current.Record.PriceUpdates)
	assert.Equal(t, int64(6), current.Record.CompareAtUpdates)

	_, err = ledger.IncrementUsage(ctx, shop, -1, 0)
	assert.ErrorIs(t, err, usage.ErrInvalidDelta)
	_, err = ledger.IncrementUsage(ctx, shop, 0, -1)
	assert.ErrorIs(t, err, usage.ErrInvalidDelta)
}

func TestIncrementUsage_Concurrent(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.IncrementUsage(ctx, shop, 1, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	current, err := ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(50), current.Record.PriceUpdates)
	assert.Equal(t, int64(100), current.Record.CompareAtUpdates)
}

func TestCheckUsageLimit(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)

	t.Run("exactly at the free limit", func(t *testing.T) {
		check, err := ledger.CheckUsageLimit(ctx, shop, "Free", 30, 0)
		require.NoError(t, err)
		assert.Equal(t, &usage.LimitCheck{Allowed: true}, check)
	})

	t.Run("one over the free limit", func(t *testing.T) {
		check, err := ledger.CheckUsageLimit(ctx, shop, "Free", 31, 0)
		require.NoError(t, err)
		assert.Equal(t, &usage.LimitCheck{
			Allowed:   false,
			Type:      usage.LimitTypePrice,
			Limit:     30,
			Current:   0,
			Attempted: 31,
		}, check)
	})

	t.Run("does not change counters", func(t *testing.T) {
		current, err := ledger.CurrentUsage(ctx, shop)
		require.NoError(t, err)
		assert.Zero(t, current.Record.PriceUpdates)
	})

	t.Run("growth is unlimited", func(t *testing.T) {
		_, err := ledger.IncrementUsage(ctx, shop, 10000, 10000)
		require.NoError(t, err)

		for _, plan := range []string{"Growth", "Growth Plan", "growth annual"} {
			check, err := ledger.CheckUsageLimit(ctx, shop, plan, 1_000_000, 1_000_000)
			require.NoError(t, err)
			assert.Equal(t, &usage.LimitCheck{Allowed: true}, check, plan)
		}
	})
}

func TestStarterScenario(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{ID: "1", Name: "Starter"})
	require.NoError(t, err)

	check, err := ledger.CheckUsageLimit(ctx, shop, "Starter", 250, 250)
	require.NoError(t, err)
	assert.True(t, check.Allowed)

	_, err = ledger.IncrementUsage(ctx, shop, 250, 250)
	require.NoError(t, err)

	check, err = ledger.CheckUsageLimit(ctx, shop, "Starter", 60, 0)
	require.NoError(t, err)
	assert.Equal(t, &usage.LimitCheck{
		Allowed:   false,
		Type:      usage.LimitTypePrice,
		Limit:     300,
		Current:   250,
		Attempted: 60,
	}, check)
}

func TestPeriodRollover(t *testing.T) {
	ctx := context.Background()
	ledger, _, c := newLedger(t, time.Date(2026, time.January, 15, 8, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)

	c.Set(time.Date(2026, time.January, 20, 8, 0, 0, 0, time.UTC))
	_, err = ledger.IncrementUsage(ctx, shop, 5, 5)
	require.NoError(t, err)

	c.Set(time.Date(2026, time.February, 14, 23, 59, 59, 0, time.UTC))
	current, err := ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15", current.BillingPeriod)
	assert.Equal(t, int64(5), current.Record.PriceUpdates)

	c.Set(time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC))
	current, err = ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-15", current.BillingPeriod)
	assert.Zero(t, current.Record.PriceUpdates)
	assert.Zero(t, current.Record.CompareAtUpdates)

	_, err = ledger.IncrementUsage(ctx, shop, 1, 0)
	require.NoError(t, err)

	history, err := ledger.UsageHistory(ctx, shop, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2026-02-15", history[0].BillingPeriod)
	assert.Equal(t, int64(1), history[0].PriceUpdates)
	assert.Equal(t, "2026-01-15", history[1].BillingPeriod)
	assert.Equal(t, int64(5), history[1].PriceUpdates)
}

func TestReserveUsage(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)

	check, err := ledger.ReserveUsage(ctx, shop, "Starter Plan", 250, 10)
	require.NoError(t, err)
	assert.True(t, check.Allowed)

	check, err = ledger.ReserveUsage(ctx, shop, "Starter Plan", 60, 0)
	require.NoError(t, err)
	assert.Equal(t, &usage.LimitCheck{
		Allowed:   false,
		Type:      usage.LimitTypePrice,
		Limit:     300,
		Current:   250,
		Attempted: 60,
	}, check)

	current, err := ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(250), current.Record.PriceUpdates)
	assert.Equal(t, int64(10), current.Record.CompareAtUpdates)

	_, err = ledger.ReserveUsage(ctx, shop, "Free", -1, 0)
	assert.ErrorIs(t, err, usage.ErrInvalidDelta)
}

func TestDeltaOverflow(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)
	_, err = ledger.IncrementUsage(ctx, shop, 1, 0)
	require.NoError(t, err)

	_, err = ledger.CheckUsageLimit(ctx, shop, "Free", math.MaxInt64, 0)
	assert.ErrorIs(t, err, usage.ErrInvalidDelta)
	_, err = ledger.ReserveUsage(ctx, shop, "Free", math.MaxInt64, 0)
	assert.ErrorIs(t, err, usage.ErrInvalidDelta)
	_, err = ledger.IncrementUsage(ctx, shop, 0, math.MaxInt64)
	assert.ErrorIs(t, err, usage.ErrInvalidDelta)

	check, err := ledger.ReserveUsage(ctx, shop, "Free", usage.MaxDelta, 0)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, int64(1), check.Current)

	current, err := ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Record.PriceUpdates)
	assert.Zero(t, current.Record.CompareAtUpdates)
}

func TestReserveUsage_ConcurrentNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check, err := ledger.ReserveUsage(ctx, shop, "Free", 1, 0)
			if assert.NoError(t, err) && check.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(30), allowed.Load())
	current, err := ledger.CurrentUsage(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(30), current.Record.PriceUpdates)
}

func TestUsageStats(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC))
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, &usage.Subscription{
		ID:        "1",
		Name:      "Starter",
		CreatedAt: ptrTime(time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	_, err = ledger.IncrementUsage(ctx, shop, 250, 40)
	require.NoError(t, err)

	t.Run("starter", func(t *testing.T) {
		stats, err := ledger.UsageStats(ctx, shop, "Starter")
		require.NoError(t, err)

		assert.Equal(t, usage.PlanStarter, stats.Plan)
		assert.Equal(t, "2026-02-28", stats.BillingPeriod)
		assert.Equal(t, time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), stats.NextResetDate)
		assert.Equal(t, int64(250), stats.PriceUpdates)
		assert.Equal(t, int64(40), stats.CompareAtUpdates)
		require.NotNil(t, stats.PriceRemaining)
		require.NotNil(t, stats.CompareAtRemaining)
		assert.Equal(t, int64(50), *stats.PriceRemaining)
		assert.Equal(t, int64(260), *stats.CompareAtRemaining)
	})

	t.Run("growth has no remaining", func(t *testing.T) {
		stats, err := ledger.UsageStats(ctx, shop, "Growth Plan")
		require.NoError(t, err)

		assert.Equal(t, usage.PlanGrowth, stats.Plan)
		assert.True(t, stats.Limits.Unlimited())
		assert.Nil(t, stats.PriceRemaining)
		assert.Nil(t, stats.CompareAtRemaining)
	})

	t.Run("remaining goes negative after a downgrade", func(t *testing.T) {
		stats, err := ledger.UsageStats(ctx, shop, "Free")
		require.NoError(t, err)

		require.NotNil(t, stats.PriceRemaining)
		assert.Equal(t, int64(-220), *stats.PriceRemaining)
		assert.Equal(t, int64(-10), *stats.CompareAtRemaining)
	})
}

func TestUsageHistory_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)
	ledger, _, c := newLedger(t, start)
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)

	for i := 0; i < 14; i++ {
		c.Set(start.AddDate(0, i, 0))
		_, err := ledger.IncrementUsage(ctx, shop, int64(i+1), 0)
		require.NoError(t, err)
	}

	history, err := ledger.UsageHistory(ctx, shop, 0)
	require.NoError(t, err)
	require.Len(t, history, 12)
	assert.Equal(t, "2026-02-05", history[0].BillingPeriod)
	assert.Equal(t, int64(14), history[0].PriceUpdates)

	history, err = ledger.UsageHistory(ctx, shop, 3)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	_, err = ledger.UsageHistory(ctx, "", 3)
	assert.ErrorIs(t, err, usage.ErrInvalidShop)
}

func TestRedactShop(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))

	for _, s := range []string{shop, "other.myshopify.com"} {
		_, err := ledger.GetOrCreateSubscriptionInfo(ctx, s, nil)
		require.NoError(t, err)
		_, err = ledger.IncrementUsage(ctx, s, 1, 1)
		require.NoError(t, err)
	}

	require.NoError(t, ledger.RedactShop(ctx, shop))

	_, err := ledger.CurrentUsage(ctx, shop)
	assert.True(t, usage.IsConfigurationError(err))
	history, err := store.ListUsageRecords(ctx, shop, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	current, err := ledger.CurrentUsage(ctx, "other.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Record.PriceUpdates)

	assert.ErrorIs(t, ledger.RedactShop(ctx, ""), usage.ErrInvalidShop)
}

func TestPlanCounts(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t, time.Now())

	subs := map[string]*usage.Subscription{
		"a.myshopify.com": {ID: "1", Name: "Starter Plan"},
		"b.myshopify.com": {ID: "2", Name: "Growth"},
		"c.myshopify.com": {ID: "3", Name: "starter"},
		"d.myshopify.com": nil,
	}
	for s, sub := range subs {
		_, err := ledger.GetOrCreateSubscriptionInfo(ctx, s, sub)
		require.NoError(t, err)
	}

	counts, err := ledger.PlanCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Free": 1, "Starter": 2, "Growth": 1}, counts)
}

func TestLedgerMetricsAndSpans(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ledger, _, _ := newLedger(t, time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC),
		usage.WithMetrics(metrics),
		usage.WithTracer(provider.Tracer(observability.TracerName)),
	)
	_, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, nil)
	require.NoError(t, err)

	_, err = ledger.IncrementUsage(ctx, shop, 4, 1)
	require.NoError(t, err)
	_, err = ledger.ReserveUsage(ctx, shop, "Free", 2, 0)
	require.NoError(t, err)
	_, err = ledger.CheckUsageLimit(ctx, shop, "Free", 100, 0)
	require.NoError(t, err)
	_, err = ledger.CurrentUsage(ctx, "unknown.myshopify.com")
	require.Error(t, err)

	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.UsageIncrementsTotal.WithLabelValues("price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UsageIncrementsTotal.WithLabelValues("compareAt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LimitDecisionsTotal.WithLabelValues("Free", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LimitDecisionsTotal.WithLabelValues("Free", "price")))

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{
		"usage.GetOrCreateSubscriptionInfo",
		"usage.IncrementUsage",
		"usage.ReserveUsage",
		"usage.CheckUsageLimit",
		"usage.CurrentUsage",
	}, names)

	failed := recorder.Ended()[4]
	assert.Equal(t, "Error", failed.Status().Code.String())
}
