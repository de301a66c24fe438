package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/pricebulk/pricebulk/pkg/usage"
)

const backend = "postgres"

// uniqueViolation is the SQLSTATE of unique_violation
const uniqueViolation = "23505"

// Store implements usage.Store on PostgreSQL
type Store struct {
	db      *sql.DB
	reader  func() *sql.DB
	closer  func() error
	metrics *observability.Metrics
}

// Option configures a Store
type Option func(*Store)

// WithMetrics records per-operation durations and errors
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// WithReader routes list queries to the returned connection, typically a read replica
func WithReader(reader func() *sql.DB) Option {
	return func(s *Store) {
		s.reader = reader
	}
}

// NewStore creates a store on an open database handle
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		closer: db.Close,
	}
	s.reader = func() *sql.DB { return s.db }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects through a ConnectionManager and returns a store that reads
// history from replicas. Closing the store closes every connection.
func Open(cm *ConnectionManager, opts ...Option) *Store {
	s := NewStore(cm.Primary(), append([]Option{WithReader(cm.Replica)}, opts...)...)
	s.closer = cm.Close
	return s
}

var _ usage.Store = (*Store)(nil)

func (s *Store) observe(operation string, start time.Time, err *error) {
	failure := *err
	if errors.Is(failure, usage.ErrNotFound) || errors.Is(failure, usage.ErrAlreadyExists) {
		failure = nil
	}
	s.metrics.RecordStoreOperation(operation, backend, start, failure)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscriptionInfo(row rowScanner) (*usage.SubscriptionInfo, error) {
	var info usage.SubscriptionInfo
	var subscriptionID sql.NullString

	err := row.Scan(
		&info.Shop,
		&subscriptionID,
		&info.PlanName,
		&info.BillingCycleDay,
		&info.StartedAt,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if subscriptionID.Valid {
		info.SubscriptionID = &subscriptionID.String
	}
	return &info, nil
}

func scanUsageRecord(row rowScanner) (*usage.UsageRecord, error) {
	var r usage.UsageRecord
	err := row.Scan(
		&r.Shop,
		&r.BillingPeriod,
		&r.PriceUpdates,
		&r.CompareAtUpdates,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetSubscriptionInfo retrieves the subscription record of a shop
func (s *Store) GetSubscriptionInfo(ctx context.Context, shop string) (info *usage.SubscriptionInfo, err error) {
	defer s.observe("get_subscription_info", time.Now(), &err)

	query := `
		SELECT shop, subscription_id, plan_name, billing_cycle_day, started_at, created_at, updated_at
		FROM subscription_info
		WHERE shop = $1
	`

	info, err = scanSubscriptionInfo(s.db.QueryRowContext(ctx, query, shop))
	if err == sql.ErrNoRows {
		return nil, usage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription info: %w", err)
	}
	return info, nil
}

// CreateSubscriptionInfo inserts a subscription record. It fails with
// usage.ErrAlreadyExists when the shop already has one.
func (s *Store) CreateSubscriptionInfo(ctx context.Context, info *usage.SubscriptionInfo) (err error) {
	defer s.observe("create_subscription_info", time.Now(), &err)

	query := `
		INSERT INTO subscription_info (shop, subscription_id, plan_name, billing_cycle_day, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		info.Shop,
		info.SubscriptionID,
		info.PlanName,
		info.BillingCycleDay,
		info.StartedAt,
	).Scan(&info.CreatedAt, &info.UpdatedAt)

	if isUniqueViolation(err) {
		return usage.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create subscription info: %w", err)
	}
	return nil
}

// UpdateSubscriptionPlan changes the subscription id and plan name of a shop
func (s *Store) UpdateSubscriptionPlan(ctx context.Context, shop string, subscriptionID *string, planName string) (info *usage.SubscriptionInfo, err error) {
	defer s.observe("update_subscription_plan", time.Now(), &err)

	query := `
		UPDATE subscription_info
		SET subscription_id = $2, plan_name = $3, updated_at = NOW()
		WHERE shop = $1
		RETURNING shop, subscription_id, plan_name, billing_cycle_day, started_at, created_at, updated_at
	`

	info, err = scanSubscriptionInfo(s.db.QueryRowContext(ctx, query, shop, subscriptionID, planName))
	if err == sql.ErrNoRows {
		return nil, usage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription plan: %w", err)
	}
	return info, nil
}

// ListSubscriptionInfos returns every subscription record ordered by shop
func (s *Store) ListSubscriptionInfos(ctx context.Context) (infos []*usage.SubscriptionInfo, err error) {
	defer s.observe("list_subscription_infos", time.Now(), &err)

	query := `
		SELECT shop, subscription_id, plan_name, billing_cycle_day, started_at, created_at, updated_at
		FROM subscription_info
		ORDER BY shop
	`

	rows, err := s.reader().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription infos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		info, err := scanSubscriptionInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription info: %w", err)
		}
		infos = append(infos, info)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscription infos: %w", err)
	}
	return infos, nil
}

// GetOrCreateUsageRecord returns the usage record of a period, inserting a zeroed
// record when none exists. A concurrent insert of the same key is not an error.
func (s *Store) GetOrCreateUsageRecord(ctx context.Context, shop, period string) (record *usage.UsageRecord, err error) {
	defer s.observe("get_or_create_usage_record", time.Now(), &err)

	selectQuery := `
		SELECT shop, billing_period, price_updates, compare_at_updates, created_at, updated_at
		FROM usage_tracking
		WHERE shop = $1 AND billing_period = $2
	`

	record, err = scanUsageRecord(s.db.QueryRowContext(ctx, selectQuery, shop, period))
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}

	upsertQuery := `
		INSERT INTO usage_tracking (shop, billing_period, price_updates, compare_at_updates)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (shop, billing_period) DO UPDATE SET shop = EXCLUDED.shop
		RETURNING shop, billing_period, price_updates, compare_at_updates, created_at, updated_at
	`

	record, err = scanUsageRecord(s.db.QueryRowContext(ctx, upsertQuery, shop, period))
	if err != nil {
		return nil, fmt.Errorf("failed to create usage record: %w", err)
	}
	return record, nil
}

// IncrementUsage adds the deltas in a single upsert so concurrent increments are never lost
func (s *Store) IncrementUsage(ctx context.Context, shop, period string, priceDelta, compareAtDelta int64) (record *usage.UsageRecord, err error) {
	defer s.observe("increment_usage", time.Now(), &err)

	query := `
		INSERT INTO usage_tracking (shop, billing_period, price_updates, compare_at_updates)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (shop, billing_period) DO UPDATE
		SET price_updates = usage_tracking.price_updates + EXCLUDED.price_updates,
		    compare_at_updates = usage_tracking.compare_at_updates + EXCLUDED.compare_at_updates,
		    updated_at = NOW()
		RETURNING shop, billing_period, price_updates, compare_at_updates, created_at, updated_at
	`

	record, err = scanUsageRecord(s.db.QueryRowContext(ctx, query, shop, period, priceDelta, compareAtDelta))
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}
	return record, nil
}

// ReserveUsage locks the period's row, evaluates the limits against it and applies
// the deltas only when allowed, all in one transaction.
func (s *Store) ReserveUsage(ctx context.Context, shop, period string, priceDelta, compareAtDelta int64, limits usage.PlanLimits) (check *usage.LimitCheck, err error) {
	defer s.observe("reserve_usage", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_tracking (shop, billing_period, price_updates, compare_at_updates)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (shop, billing_period) DO NOTHING
	`, shop, period)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize usage record: %w", err)
	}

	current, err := scanUsageRecord(tx.QueryRowContext(ctx, `
		SELECT shop, billing_period, price_updates, compare_at_updates, created_at, updated_at
		FROM usage_tracking
		WHERE shop = $1 AND billing_period = $2
		FOR UPDATE
	`, shop, period))
	if err != nil {
		return nil, fmt.Errorf("failed to lock usage record: %w", err)
	}

	check = usage.EvaluateLimits(limits, current, priceDelta, compareAtDelta)
	if !check.Allowed {
		return check, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE usage_tracking
		SET price_updates = price_updates + $3,
		    compare_at_updates = compare_at_updates + $4,
		    updated_at = NOW()
		WHERE shop = $1 AND billing_period = $2
	`, shop, period, priceDelta, compareAtDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to apply usage reservation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return check, nil
}

// ListUsageRecords returns up to limit records of the shop, newest period first
func (s *Store) ListUsageRecords(ctx context.Context, shop string, limit int) (records []*usage.UsageRecord, err error) {
	defer s.observe("list_usage_records", time.Now(), &err)

	query := `
		SELECT shop, billing_period, price_updates, compare_at_updates, created_at, updated_at
		FROM usage_tracking
		WHERE shop = $1
		ORDER BY billing_period DESC
		LIMIT $2
	`

	rows, err := s.reader().QueryContext(ctx, query, shop, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanUsageRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}
	return records, nil
}

// DeleteShopData removes all rows of the shop in one transaction
func (s *Store) DeleteShopData(ctx context.Context, shop string) (err error) {
	defer s.observe("delete_shop_data", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM usage_tracking WHERE shop = $1`, shop); err != nil {
		return fmt.Errorf("failed to delete usage records: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM subscription_info WHERE shop = $1`, shop); err != nil {
		return fmt.Errorf("failed to delete subscription info: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connections
func (s *Store) Close() error {
	return s.closer()
}
