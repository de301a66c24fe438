// Package usage tracks per-shop price update usage against subscription plan limits.
//
// # Overview
//
// Every shop has one SubscriptionInfo record holding its plan name and a billing
// anchor day fixed when the record is first created. Usage is counted per billing
// period in UsageRecord rows keyed by (shop, billing period), where the period key is
// the ISO date on which the current period started. Records are created lazily the
// first time a period is read or incremented.
//
// # Plans
//
// Free:    30 price updates, 30 compare-at price updates per period
// Starter: 300 price updates, 300 compare-at price updates per period
// Growth:  unlimited
//
// Plan names coming from the platform are matched case-insensitively by substring
// ("Starter Monthly" is Starter); anything unrecognized falls back to Free.
//
// # Billing Periods
//
// Periods start on the anchor day of each month. When a month is shorter than the
// anchor day, the period starts on that month's last day instead (anchor 31 starts on
// Feb 28 or 29, Apr 30, and so on).
//
// # Usage Example
//
//	ledger := usage.New(store, usage.WithLogger(logger))
//
//	if _, err := ledger.GetOrCreateSubscriptionInfo(ctx, shop, sub); err != nil {
//		return err
//	}
//
//	check, err := ledger.ReserveUsage(ctx, shop, sub.Name, priceCount, compareAtCount)
//	if err != nil {
//		return err
//	}
//	if !check.Allowed {
//		return fmt.Errorf("%s limit of %d reached", check.Type, check.Limit)
//	}
//
// # Related Packages
//
//   - pkg/storage/postgres, pkg/storage/sqlite, pkg/storage/memory: Store implementations
//   - pkg/storage/cache: SubscriptionInfo read-through cache
package usage
