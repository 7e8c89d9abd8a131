package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/errs"
	"github.com/storycraft/billing/internal/domain/model"
	"github.com/storycraft/billing/internal/domain/rules"
	pgrepo "github.com/storycraft/billing/internal/repo/postgres"
)

// Store is the cached plan on the user record. Subsystems that cannot
// afford a subscription read (the points ledger, feature gates) go through here.
type Store interface {
	GetProjection(ctx context.Context, userID string) (model.UserProjection, error)
	ResetExpired(ctx context.Context, userID string, observedExpiresAt, now time.Time) (bool, error)
}

type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

type Snapshot struct {
	UserID    string
	Plan      string
	ExpiresAt *time.Time
	IsPaid    bool
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Get reads the projection and lazily downgrades it to free once its expiry passed.
func (s *Service) Get(ctx context.Context, userID string) (Snapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Snapshot{}, errs.ErrAuthRequired
	}
	if s.store == nil {
		return Snapshot{}, fmt.Errorf("projection store is nil")
	}

	rec, err := s.store.GetProjection(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrProjectionNotFound) {
			return Snapshot{UserID: userID, Plan: enums.PlanFree}, nil
		}
		return Snapshot{}, err
	}

	now := s.now().UTC()
	plan := rec.UserPlan
	if plan == "" {
		plan = enums.PlanFree
	}
	if plan != enums.PlanFree && (rec.SubscriptionExpiresAt == nil || rules.ExpiredAt(*rec.SubscriptionExpiresAt, now)) {
		plan = enums.PlanFree
		if rec.SubscriptionExpiresAt != nil {
			if _, err := s.store.ResetExpired(ctx, userID, *rec.SubscriptionExpiresAt, now); err != nil {
				s.logger.Warn("reset expired projection", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	return Snapshot{
		UserID:    userID,
		Plan:      plan,
		ExpiresAt: rec.SubscriptionExpiresAt,
		IsPaid:    plan != enums.PlanFree,
	}, nil
}
