package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	plan_type TEXT NOT NULL,
	cycle TEXT NOT NULL,
	price BIGINT NOT NULL,
	duration_days INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid', 'failed')),
	payment_method TEXT,
	payment_data JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ NOT NULL,
	activated_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_unactivated_idx ON orders (updated_at) WHERE status = 'paid' AND activated_at IS NULL`,
	`
CREATE TABLE IF NOT EXISTS subscriptions (
	user_id TEXT PRIMARY KEY,
	plan_type TEXT NOT NULL,
	cycle TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('active', 'cancelled')),
	start_date TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	last_order_id TEXT,
	last_order_created_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`ALTER TABLE subscriptions ADD COLUMN IF NOT EXISTS last_order_created_at TIMESTAMPTZ`,
	`
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	user_plan TEXT NOT NULL DEFAULT 'free',
	subscription_expires_at TIMESTAMPTZ,
	projection_version TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

// Migrate applies the billing schema in one transaction. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errPoolNil
	}

	return WithTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		for i, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return storeErr(fmt.Sprintf("apply schema statement %d", i), err)
			}
		}
		return nil
	})
}
