package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscription_info (
	shop              TEXT PRIMARY KEY,
	subscription_id   TEXT,
	plan_name         TEXT NOT NULL DEFAULT 'Free',
	billing_cycle_day INTEGER NOT NULL CHECK (billing_cycle_day BETWEEN 1 AND 31),
	started_at        TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS usage_tracking (
	shop               TEXT NOT NULL,
	billing_period     TEXT NOT NULL,
	price_updates      BIGINT NOT NULL DEFAULT 0 CHECK (price_updates >= 0),
	compare_at_updates BIGINT NOT NULL DEFAULT 0 CHECK (compare_at_updates >= 0),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (shop, billing_period)
);
`

// EnsureSchema creates the subscription_info and usage_tracking tables if missing
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
