// Package usagetest provides a behavioural test suite shared by usage.Store implementations.
package usagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pricebulk/pricebulk/pkg/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewStoreFunc returns an empty store. The suite closes it when the subtest ends.
type NewStoreFunc func(t *testing.T) usage.Store

// RunStoreSuite runs the store contract tests against newStore
func RunStoreSuite(t *testing.T, newStore NewStoreFunc) {
	t.Run("SubscriptionInfo", func(t *testing.T) { testSubscriptionInfo(t, open(t, newStore)) })
	t.Run("UsageRecords", func(t *testing.T) { testUsageRecords(t, open(t, newStore)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, open(t, newStore)) })
	t.Run("ReserveUsage", func(t *testing.T) { testReserveUsage(t, open(t, newStore)) })
	t.Run("ConcurrentReservations", func(t *testing.T) { testConcurrentReservations(t, open(t, newStore)) })
	t.Run("DeleteShopData", func(t *testing.T) { testDeleteShopData(t, open(t, newStore)) })
}

func open(t *testing.T, newStore NewStoreFunc) usage.Store {
	store := newStore(t)
	t.Cleanup(func() { store.Close() })
	return store
}

func testSubscriptionInfo(t *testing.T, store usage.Store) {
	ctx := context.Background()
	started := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

	_, err := store.GetSubscriptionInfo(ctx, "s1.myshopify.com")
	assert.ErrorIs(t, err, usage.ErrNotFound)

	id := "gid://shopify/AppSubscription/1"
	require.NoError(t, store.CreateSubscriptionInfo(ctx, &usage.SubscriptionInfo{
		Shop:            "s1.myshopify.com",
		SubscriptionID:  &id,
		PlanName:        "Starter",
		BillingCycleDay: 15,
		StartedAt:       started,
	}))

	err = store.CreateSubscriptionInfo(ctx, &usage.SubscriptionInfo{
		Shop:            "s1.myshopify.com",
		PlanName:        "Free",
		BillingCycleDay: 3,
		StartedAt:       started,
	})
	assert.ErrorIs(t, err, usage.ErrAlreadyExists)

	info, err := store.GetSubscriptionInfo(ctx, "s1.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "Starter", info.PlanName)
	assert.Equal(t, 15, info.BillingCycleDay)
	assert.True(t, info.StartedAt.Equal(started))
	require.NotNil(t, info.SubscriptionID)
	assert.Equal(t, id, *info.SubscriptionID)

	newID := "gid://shopify/AppSubscription/2"
	updated, err := store.UpdateSubscriptionPlan(ctx, "s1.myshopify.com", &newID, "Growth Plan")
	require.NoError(t, err)
	assert.Equal(t, "Growth Plan", updated.PlanName)
	assert.Equal(t, newID, *updated.SubscriptionID)
	assert.Equal(t, 15, updated.BillingCycleDay)
	assert.True(t, updated.StartedAt.Equal(started))

	_, err = store.UpdateSubscriptionPlan(ctx, "missing.myshopify.com", &newID, "Starter")
	assert.ErrorIs(t, err, usage.ErrNotFound)

	require.NoError(t, store.CreateSubscriptionInfo(ctx, &usage.SubscriptionInfo{
		Shop:            "a.myshopify.com",
		PlanName:        "Free",
		BillingCycleDay: 1,
		StartedAt:       started,
	}))

	infos, err := store.ListSubscriptionInfos(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a.myshopify.com", infos[0].Shop)
	assert.Nil(t, infos[0].SubscriptionID)
	assert.Equal(t, "s1.myshopify.com", infos[1].Shop)
}

func testUsageRecords(t *testing.T, store usage.Store) {
	ctx := context.Background()
	shop := "s1.myshopify.com"

	record, err := store.GetOrCreateUsageRecord(ctx, shop, "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, shop, record.Shop)
	assert.Equal(t, "2026-01-15", record.BillingPeriod)
	assert.Zero(t, record.PriceUpdates)
	assert.Zero(t, record.CompareAtUpdates)

	record, err = store.IncrementUsage(ctx, shop, "2026-01-15", 10, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(10), record.PriceUpdates)
	assert.Equal(t, int64(3), record.CompareAtUpdates)

	record, err = store.IncrementUsage(ctx, shop, "2026-01-15", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(15), record.PriceUpdates)
	assert.Equal(t, int64(3), record.CompareAtUpdates)

	// an increment on a missing period creates it with the deltas
	record, err = store.IncrementUsage(ctx, shop, "2026-02-15", 7, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(7), record.PriceUpdates)
	assert.Equal(t, int64(2), record.CompareAtUpdates)

	record, err = store.GetOrCreateUsageRecord(ctx, shop, "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, int64(15), record.PriceUpdates)

	_, err = store.GetOrCreateUsageRecord(ctx, "other.myshopify.com", "2026-03-01")
	require.NoError(t, err)

	records, err := store.ListUsageRecords(ctx, shop, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2026-02-15", records[0].BillingPeriod)
	assert.Equal(t, "2026-01-15", records[1].BillingPeriod)

	records, err = store.ListUsageRecords(ctx, shop, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2026-02-15", records[0].BillingPeriod)
}

func testConcurrentIncrements(t *testing.T, store usage.Store) {
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementUsage(ctx, "s1.myshopify.com", "2026-01-15", 2, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	record, err := store.GetOrCreateUsageRecord(ctx, "s1.myshopify.com", "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, int64(2*workers), record.PriceUpdates)
	assert.Equal(t, int64(workers), record.CompareAtUpdates)
}

func testReserveUsage(t *testing.T, store usage.Store) {
	ctx := context.Background()
	shop := "s1.myshopify.com"
	starter := usage.LimitsForPlan("Starter")

	check, err := store.ReserveUsage(ctx, shop, "2026-01-15", 250, 250, starter)
	require.NoError(t, err)
	assert.True(t, check.Allowed)

	check, err = store.ReserveUsage(ctx, shop, "2026-01-15", 60, 0, starter)
	require.NoError(t, err)
	assert.Equal(t, &usage.LimitCheck{
		Allowed:   false,
		Type:      usage.LimitTypePrice,
		Limit:     300,
		Current:   250,
		Attempted: 60,
	}, check)

	check, err = store.ReserveUsage(ctx, shop, "2026-01-15", 0, 51, starter)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, usage.LimitTypeCompareAt, check.Type)

	// refused reservations leave the counters untouched
	record, err := store.GetOrCreateUsageRecord(ctx, shop, "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, int64(250), record.PriceUpdates)
	assert.Equal(t, int64(250), record.CompareAtUpdates)

	check, err = store.ReserveUsage(ctx, shop, "2026-01-15", 50, 50, starter)
	require.NoError(t, err)
	assert.True(t, check.Allowed)

	check, err = store.ReserveUsage(ctx, shop, "2026-01-15", 5000, 5000, usage.LimitsForPlan("Growth"))
	require.NoError(t, err)
	assert.True(t, check.Allowed)

	record, err = store.GetOrCreateUsageRecord(ctx, shop, "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, int64(5300), record.PriceUpdates)
}

func testConcurrentReservations(t *testing.T, store usage.Store) {
	ctx := context.Background()
	const workers = 25
	free := usage.LimitsForPlan("Free")

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check, err := store.ReserveUsage(ctx, "s1.myshopify.com", "2026-01-15", 2, 0, free)
			if err != nil {
				t.Errorf("reserve failed: %v", err)
				return
			}
			if check.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 15, allowed)

	record, err := store.GetOrCreateUsageRecord(ctx, "s1.myshopify.com", "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, int64(30), record.PriceUpdates)
}

func testDeleteShopData(t *testing.T, store usage.Store) {
	ctx := context.Background()
	started := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	for _, shop := range []string{"s1.myshopify.com", "s2.myshopify.com"} {
		require.NoError(t, store.CreateSubscriptionInfo(ctx, &usage.SubscriptionInfo{
			Shop:            shop,
			PlanName:        "Free",
			BillingCycleDay: 15,
			StartedAt:       started,
		}))
		_, err := store.IncrementUsage(ctx, shop, "2026-01-15", 1, 1)
		require.NoError(t, err)
		_, err = store.IncrementUsage(ctx, shop, "2026-02-15", 1, 1)
		require.NoError(t, err)
	}

	require.NoError(t, store.DeleteShopData(ctx, "s1.myshopify.com"))
	// deleting an unknown shop is not an error
	require.NoError(t, store.DeleteShopData(ctx, "unknown.myshopify.com"))

	_, err := store.GetSubscriptionInfo(ctx, "s1.myshopify.com")
	assert.ErrorIs(t, err, usage.ErrNotFound)

	records, err := store.ListUsageRecords(ctx, "s1.myshopify.com", 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = store.GetSubscriptionInfo(ctx, "s2.myshopify.com")
	assert.NoError(t, err)
	records, err = store.ListUsageRecords(ctx, "s2.myshopify.com", 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
