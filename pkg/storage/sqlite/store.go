// Package sqlite implements usage.Store on an embedded SQLite database.
//
// Write transactions are opened with BEGIN IMMEDIATE (the _txlock=immediate DSN
// parameter) so a reservation holds the write lock from its first read.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/pricebulk/pricebulk/pkg/usage"
)

const backend = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS subscription_info (
	shop              TEXT PRIMARY KEY,
	subscription_id   TEXT,
	plan_name         TEXT NOT NULL DEFAULT 'Free',
	billing_cycle_day INTEGER NOT NULL,
	started_at        TIMESTAMP NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_tracking (
	shop               TEXT NOT NULL,
	billing_period     TEXT NOT NULL,
	price_updates      INTEGER NOT NULL DEFAULT 0,
	compare_at_updates INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	PRIMARY KEY (shop, billing_period)
);
`

const (
	subscriptionColumns = "shop, subscription_id, plan_name, billing_cycle_day, started_at, created_at, updated_at"
	usageColumns        = "shop, billing_period, price_updates, compare_at_updates, created_at, updated_at"
)

// Store implements usage.Store on SQLite
type Store struct {
	db      *sql.DB
	now     func() time.Time
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

// DSN builds the connection string for a database path. ":memory:" opens a private
// in-memory database.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_busy_timeout=5000"
}

// Open opens the database at path and creates the schema if needed
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ usage.Store = (*Store)(nil)

func (s *Store) observe(operation string, start time.Time, err *error) {
	failure := *err
	if errors.Is(failure, usage.ErrNotFound) || errors.Is(failure, usage.ErrAlreadyExists) {
		failure = nil
	}
	s.metrics.RecordStoreOperation(operation, backend, start, failure)
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
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
	err := row.Scan(&r.Shop, &r.BillingPeriod, &r.PriceUpdates, &r.CompareAtUpdates, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func selectUsageRecord(ctx context.Context, q querier, shop, period string) (*usage.UsageRecord, error) {
	return scanUsageRecord(q.QueryRowContext(ctx,
		`SELECT `+usageColumns+` FROM usage_tracking WHERE shop = ? AND billing_period = ?`,
		shop, period))
}

func (s *Store) GetSubscriptionInfo(ctx context.Context, shop string) (info *usage.SubscriptionInfo, err error) {
	defer s.observe("get_subscription_info", time.Now(), &err)

	info, err = scanSubscriptionInfo(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription_info WHERE shop = ?`, shop))
	if err == sql.ErrNoRows {
		return nil, usage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription info: %w", err)
	}
	return info, nil
}

func (s *Store) CreateSubscriptionInfo(ctx context.Context, info *usage.SubscriptionInfo) (err error) {
	defer s.observe("create_subscription_info", time.Now(), &err)

	now := s.now().UTC()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscription_info (shop, subscription_id, plan_name, billing_cycle_day, started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, info.Shop, info.SubscriptionID, info.PlanName, info.BillingCycleDay, info.StartedAt.UTC(), info.CreatedAt.UTC(), info.UpdatedAt.UTC())

	if isConstraintViolation(err) {
		return usage.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create subscription info: %w", err)
	}
	return nil
}

func (s *Store) UpdateSubscriptionPlan(ctx context.Context, shop string, subscriptionID *string, planName string) (info *usage.SubscriptionInfo, err error) {
	defer s.observe("update_subscription_plan", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE subscription_info SET subscription_id = ?, plan_name = ?, updated_at = ? WHERE shop = ?
	`, subscriptionID, planName, s.now().UTC(), shop)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription plan: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, usage.ErrNotFound
	}

	info, err = scanSubscriptionInfo(tx.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription_info WHERE shop = ?`, shop))
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription info: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return info, nil
}

func (s *Store) ListSubscriptionInfos(ctx context.Context) (infos []*usage.SubscriptionInfo, err error) {
	defer s.observe("list_subscription_infos", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscription_info ORDER BY shop`)
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

func (s *Store) GetOrCreateUsageRecord(ctx context.Context, shop, period string) (record *usage.UsageRecord, err error) {
	defer s.observe("get_or_create_usage_record", time.Now(), &err)

	record, err = selectUsageRecord(ctx, s.db, shop, period)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO usage_tracking (shop, billing_period, price_updates, compare_at_updates, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)
		ON CONFLICT (shop, billing_period) DO NOTHING
	`, shop, period, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage record: %w", err)
	}

	record, err = selectUsageRecord(ctx, s.db, shop, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}
	return record, nil
}

func (s *Store) IncrementUsage(ctx context.Context, shop, period string, priceDelta, compareAtDelta int64) (record *usage.UsageRecord, err error) {
	defer s.observe("increment_usage", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_tracking (shop, billing_period, price_updates, compare_at_updates, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (shop, billing_period) DO UPDATE
		SET price_updates = price_updates + excluded.price_updates,
		    compare_at_updates = compare_at_updates + excluded.compare_at_updates,
		    updated_at = excluded.updated_at
	`, shop, period, priceDelta, compareAtDelta, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	record, err = selectUsageRecord(ctx, tx, shop, period)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return record, nil
}

func (s *Store) ReserveUsage(ctx context.Context, shop, period string, priceDelta, compareAtDelta int64, limits usage.PlanLimits) (check *usage.LimitCheck, err error) {
	defer s.observe("reserve_usage", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_tracking (shop, billing_period, price_updates, compare_at_updates, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)
		ON CONFLICT (shop, billing_period) DO NOTHING
	`, shop, period, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize usage record: %w", err)
	}

	current, err := selectUsageRecord(ctx, tx, shop, period)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage record: %w", err)
	}

	check = usage.EvaluateLimits(limits, current, priceDelta, compareAtDelta)
	if !check.Allowed {
		return check, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE usage_tracking
		SET price_updates = price_updates + ?, compare_at_updates = compare_at_updates + ?, updated_at = ?
		WHERE shop = ? AND billing_period = ?
	`, priceDelta, compareAtDelta, now, shop, period)
	if err != nil {
		return nil, fmt.Errorf("failed to apply usage reservation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return check, nil
}

func (s *Store) ListUsageRecords(ctx context.Context, shop string, limit int) (records []*usage.UsageRecord, err error) {
	defer s.observe("list_usage_records", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+usageColumns+` FROM usage_tracking WHERE shop = ? ORDER BY billing_period DESC LIMIT ?`,
		shop, limit)
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

func (s *Store) DeleteShopData(ctx context.Context, shop string) (err error) {
	defer s.observe("delete_shop_data", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM usage_tracking WHERE shop = ?`, shop); err != nil {
		return fmt.Errorf("failed to delete usage records: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM subscription_info WHERE shop = ?`, shop); err != nil {
		return fmt.Errorf("failed to delete subscription info: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
