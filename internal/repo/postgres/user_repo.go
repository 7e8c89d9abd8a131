package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/model"
)

var ErrProjectionNotFound = errors.New("user projection not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetProjection(ctx context.Context, userID string) (model.UserProjection, error) {
	if r.pool == nil {
		return model.UserProjection{}, errPoolNil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.UserProjection{}, ErrProjectionNotFound
	}

	var p model.UserProjection
	err := r.pool.QueryRow(ctx, `
SELECT id, user_plan, subscription_expires_at, updated_at
FROM users
WHERE id = $1
LIMIT 1
`, userID).Scan(&p.UserID, &p.UserPlan, &p.SubscriptionExpiresAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UserProjection{}, ErrProjectionNotFound
		}
		return model.UserProjection{}, storeErr("get user projection", err)
	}

	return p, nil
}

// SyncProjection overwrites the cached plan unless a newer subscription
// version has already been written. version is the subscription's updated_at.
func (r *UserRepo) SyncProjection(ctx context.Context, p model.UserProjection, version time.Time) error {
	if r.pool == nil {
		return errPoolNil
	}
	if strings.TrimSpace(p.UserID) == "" {
		return ErrProjectionNotFound
	}
	plan := strings.TrimSpace(p.UserPlan)
	if plan == "" {
		plan = enums.PlanFree
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO users (
	id,
	user_plan,
	subscription_expires_at,
	projection_version,
	updated_at
) VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE SET
	user_plan = EXCLUDED.user_plan,
	subscription_expires_at = EXCLUDED.subscription_expires_at,
	projection_version = EXCLUDED.projection_version,
	updated_at = NOW()
WHERE users.projection_version IS NULL
   OR users.projection_version <= EXCLUDED.projection_version
`, p.UserID, plan, p.SubscriptionExpiresAt, version.UTC()); err != nil {
		return storeErr("sync user projection", err)
	}

	return nil
}

// ResetExpired downgrades a cached paid plan to free when the cached expiry
// is still the one the caller observed and it has passed.
func (r *UserRepo) ResetExpired(ctx context.Context, userID string, observedExpiresAt, now time.Time) (bool, error) {
	if r.pool == nil {
		return false, errPoolNil
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET
	user_plan = 'free',
	updated_at = NOW()
WHERE id = $1
  AND user_plan <> 'free'
  AND subscription_expires_at = $2
  AND subscription_expires_at < $3
`, strings.TrimSpace(userID), observedExpiresAt.UTC(), now.UTC())
	if err != nil {
		return false, storeErr("reset expired user projection", err)
	}

	return tag.RowsAffected() > 0, nil
}
