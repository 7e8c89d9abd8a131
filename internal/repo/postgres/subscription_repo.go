package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/errs"
	"github.com/storycraft/billing/internal/domain/model"
	"github.com/storycraft/billing/internal/domain/rules"
)

const subscriptionColumns = `user_id, plan_type, cycle, status, start_date, expires_at, COALESCE(last_order_id, ''), COALESCE(last_order_created_at, created_at), created_at, updated_at`

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

// SubscriptionGrant is one paid order applied to a user's entitlement window.
type SubscriptionGrant struct {
	UserID       string
	PlanType     enums.PlanType
	Cycle        enums.BillingCycle
	DurationDays int
	OrderID      string
	OrderAt      time.Time
	Policy       enums.RenewalPolicy
	Now          time.Time
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func (r *SubscriptionRepo) GetByUser(ctx context.Context, userID string) (model.Subscription, error) {
	if r.pool == nil {
		return model.Subscription{}, errPoolNil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Subscription{}, errs.ErrSubscriptionNotFound
	}

	sub, err := scanSubscription(r.pool.QueryRow(ctx, `
SELECT `+subscriptionColumns+`
FROM subscriptions
WHERE user_id = $1
LIMIT 1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Subscription{}, errs.ErrSubscriptionNotFound
		}
		return model.Subscription{}, storeErr("get subscription by user", err)
	}

	return sub, nil
}

// Apply upserts the user's subscription for a paid order in one statement.
// Re-applying the last applied order, or an order created before it, writes
// nothing and returns the stored record with changed=false. Orders are ranked
// by (created_at, id) so a resumed older order never replaces a newer grant.
//
// Under the stack policy an active, unexpired window is extended from its
// current expiry; anything else starts a fresh window at grant.Now.
func (r *SubscriptionRepo) Apply(ctx context.Context, grant SubscriptionGrant) (model.Subscription, bool, error) {
	if r.pool == nil {
		return model.Subscription{}, false, errPoolNil
	}
	if strings.TrimSpace(grant.UserID) == "" || strings.TrimSpace(grant.OrderID) == "" || grant.DurationDays <= 0 {
		return model.Subscription{}, false, fmt.Errorf("invalid subscription grant payload")
	}
	now := grant.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	durationMillis := int64(grant.DurationDays) * 86400000
	orderAt := grant.OrderAt.UTC()
	if grant.OrderAt.IsZero() {
		orderAt = now
	}

	sub, err := scanSubscription(r.pool.QueryRow(ctx, `
INSERT INTO subscriptions (
	user_id,
	plan_type,
	cycle,
	status,
	start_date,
	expires_at,
	last_order_id,
	last_order_created_at,
	created_at,
	updated_at
) VALUES ($1, $2, $3, 'active', $4, $5, $6, $9, $4, $4)
ON CONFLICT (user_id) DO UPDATE SET
	plan_type = EXCLUDED.plan_type,
	cycle = EXCLUDED.cycle,
	status = 'active',
	start_date = CASE
		WHEN $7::text = 'stack' AND subscriptions.status = 'active' AND subscriptions.expires_at > EXCLUDED.start_date
			THEN subscriptions.start_date
		ELSE EXCLUDED.start_date
	END,
	expires_at = CASE
		WHEN $7::text = 'stack' AND subscriptions.status = 'active' AND subscriptions.expires_at > EXCLUDED.start_date
			THEN subscriptions.expires_at + ($8::bigint * INTERVAL '1 millisecond')
		ELSE EXCLUDED.expires_at
	END,
	last_order_id = EXCLUDED.last_order_id,
	last_order_created_at = EXCLUDED.last_order_created_at,
	updated_at = GREATEST(subscriptions.updated_at + INTERVAL '1 microsecond', EXCLUDED.updated_at)
WHERE subscriptions.last_order_id IS DISTINCT FROM EXCLUDED.last_order_id
  AND (
	subscriptions.last_order_created_at IS NULL
	OR (subscriptions.last_order_created_at, COALESCE(subscriptions.last_order_id, '')) < (EXCLUDED.last_order_created_at, EXCLUDED.last_order_id)
  )
RETURNING `+subscriptionColumns+`
`,
		grant.UserID,
		string(grant.PlanType),
		string(grant.Cycle),
		now,
		rules.EntitlementExpiry(now, grant.DurationDays),
		grant.OrderID,
		string(grant.Policy),
		durationMillis,
		orderAt,
	))
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Subscription{}, false, storeErr("apply subscription grant", err)
	}

	existing, err := r.GetByUser(ctx, grant.UserID)
	if err != nil {
		return model.Subscription{}, false, err
	}
	return existing, false, nil
}

// Cancel revokes access immediately. The expiry date is kept as history.
// updated_at only moves forward so it can version the user projection.
func (r *SubscriptionRepo) Cancel(ctx context.Context, userID string, now time.Time) (model.Subscription, error) {
	if r.pool == nil {
		return model.Subscription{}, errPoolNil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Subscription{}, errs.ErrSubscriptionNotFound
	}

	sub, err := scanSubscription(r.pool.QueryRow(ctx, `
UPDATE subscriptions
SET
	status = 'cancelled',
	updated_at = GREATEST(updated_at + INTERVAL '1 microsecond', $2)
WHERE user_id = $1
RETURNING `+subscriptionColumns+`
`, userID, now.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Subscription{}, errs.ErrSubscriptionNotFound
		}
		return model.Subscription{}, storeErr("cancel subscription", err)
	}

	return sub, nil
}

func scanSubscription(row pgx.Row) (model.Subscription, error) {
	var sub model.Subscription
	if err := row.Scan(
		&sub.UserID,
		&sub.PlanType,
		&sub.Cycle,
		&sub.Status,
		&sub.StartDate,
		&sub.ExpiresAt,
		&sub.LastOrderID,
		&sub.LastOrderAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}
