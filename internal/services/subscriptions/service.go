package subscriptions

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

type Store interface {
	GetByUser(ctx context.Context, userID string) (model.Subscription, error)
	Cancel(ctx context.Context, userID string, now time.Time) (model.Subscription, error)
}

type ProjectionStore interface {
	GetProjection(ctx context.Context, userID string) (model.UserProjection, error)
	SyncProjection(ctx context.Context, p model.UserProjection, version time.Time) error
}

type Service struct {
	store       Store
	projections ProjectionStore
	logger      *zap.Logger
	now         func() time.Time
}

// View is the subscription as callers should see it: status and plan are
// derived from the stored record at read time.
type View struct {
	UserID        string
	PlanType      enums.PlanType
	Cycle         enums.BillingCycle
	Status        enums.SubscriptionStatus
	EffectivePlan string
	StartDate     *time.Time
	ExpiresAt     *time.Time
}

func NewService(store Store, projections ProjectionStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		projections: projections,
		logger:      logger,
		now:         time.Now,
	}
}

// Get resolves the live subscription and repairs a stale projection on the way.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return View{}, errs.ErrAuthRequired
	}
	if s.store == nil {
		return View{}, fmt.Errorf("subscription store is nil")
	}

	sub, err := s.store.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrSubscriptionNotFound) {
			return View{UserID: userID, Status: enums.SubscriptionStatusNone, EffectivePlan: enums.PlanFree}, nil
		}
		return View{}, err
	}

	view := toView(sub, s.now().UTC())
	s.heal(ctx, sub, view)
	return view, nil
}

// Cancel revokes access at once; the view reports cancelled regardless of expiry.
func (s *Service) Cancel(ctx context.Context, userID string) (View, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return View{}, errs.ErrAuthRequired
	}
	if s.store == nil {
		return View{}, fmt.Errorf("subscription store is nil")
	}

	now := s.now().UTC()
	sub, err := s.store.Cancel(ctx, userID, now)
	if err != nil {
		return View{}, err
	}
	s.logger.Info("subscription cancelled", zap.String("user_id", userID), zap.Time("expires_at", sub.ExpiresAt))

	view := toView(sub, now)
	s.sync(ctx, sub, view)
	return view, nil
}

func (s *Service) heal(ctx context.Context, sub model.Subscription, view View) {
	if s.projections == nil {
		return
	}
	current, err := s.projections.GetProjection(ctx, sub.UserID)
	if err != nil && !errors.Is(err, pgrepo.ErrProjectionNotFound) {
		s.logger.Warn("read user projection", zap.String("user_id", sub.UserID), zap.Error(err))
		return
	}
	if err == nil && current.UserPlan == view.EffectivePlan && sameTime(current.SubscriptionExpiresAt, view.ExpiresAt) {
		return
	}
	s.sync(ctx, sub, view)
}

// sync failures are logged only; the projection is a cache and the next read retries.
func (s *Service) sync(ctx context.Context, sub model.Subscription, view View) {
	if s.projections == nil {
		return
	}
	p := model.UserProjection{
		UserID:                sub.UserID,
		UserPlan:              view.EffectivePlan,
		SubscriptionExpiresAt: view.ExpiresAt,
	}
	if err := s.projections.SyncProjection(ctx, p, sub.UpdatedAt); err != nil {
		s.logger.Warn("sync user projection", zap.String("user_id", sub.UserID), zap.Error(err))
	}
}

func toView(sub model.Subscription, now time.Time) View {
	start := sub.StartDate
	expires := sub.ExpiresAt
	return View{
		UserID:        sub.UserID,
		PlanType:      sub.PlanType,
		Cycle:         sub.Cycle,
		Status:        rules.EffectiveStatus(sub, now),
		EffectivePlan: rules.EffectivePlan(sub, now),
		StartDate:     &start,
		ExpiresAt:     &expires,
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
