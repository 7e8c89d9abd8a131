package activation

import (
	"context"
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

type OrderStore interface {
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	MarkTerminal(ctx context.Context, orderID string, status enums.OrderStatus, method enums.PaymentMethod, paymentData map[string]any) (model.Order, bool, error)
	MarkActivated(ctx context.Context, orderID string) error
}

type SubscriptionStore interface {
	Apply(ctx context.Context, grant pgrepo.SubscriptionGrant) (model.Subscription, bool, error)
}

type ProjectionStore interface {
	SyncProjection(ctx context.Context, p model.UserProjection, version time.Time) error
}

// Locker serializes confirmers of one order. It is an optimization only;
// the conditional order update is what guarantees a single transition.
type Locker interface {
	Lock(ctx context.Context, orderID string) (func(), error)
}

type Dependencies struct {
	Orders        OrderStore
	Subscriptions SubscriptionStore
	Projections   ProjectionStore
	Locker        Locker
	RenewalPolicy enums.RenewalPolicy
	Logger        *zap.Logger
}

type Service struct {
	orders        OrderStore
	subscriptions SubscriptionStore
	projections   ProjectionStore
	locker        Locker
	policy        enums.RenewalPolicy
	logger        *zap.Logger
	now           func() time.Time
}

// ConfirmedPayment is the normalized output of every confirmation channel.
// UserID, PlanType and Cycle are claims from the channel; when set they must
// match the stored order.
type ConfirmedPayment struct {
	OrderID     string
	UserID      string
	PlanType    enums.PlanType
	Cycle       enums.BillingCycle
	Method      enums.PaymentMethod
	PaymentData map[string]any
}

type Result struct {
	OrderID  string
	Status   enums.OrderStatus
	Replayed bool
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.RenewalPolicy
	if policy == "" {
		policy = enums.RenewalPolicyReplace
	}
	return &Service{
		orders:        deps.Orders,
		subscriptions: deps.Subscriptions,
		projections:   deps.Projections,
		locker:        deps.Locker,
		policy:        policy,
		logger:        logger,
		now:           time.Now,
	}
}

// Confirm marks the order paid, applies it to the user's subscription and
// refreshes the user projection, in that order. A paid order whose downstream
// writes never finished is resumed from the subscription step.
func (s *Service) Confirm(ctx context.Context, in ConfirmedPayment) (Result, error) {
	if err := s.ready(); err != nil {
		return Result{}, err
	}
	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		return Result{}, fmt.Errorf("%w: order id is required", errs.ErrValidation)
	}

	unlock := s.lock(ctx, orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if err := checkClaims(order, in); err != nil {
		return Result{}, err
	}

	switch order.Status {
	case enums.OrderStatusFailed:
		return Result{}, fmt.Errorf("%w: order %s already failed", errs.ErrInvalidStateTransition, orderID)
	case enums.OrderStatusPaid:
		if order.ActivatedAt != nil {
			return replayed(order), nil
		}
	}

	plan, err := rules.PriceOf(order.PlanType, order.Cycle)
	if err != nil {
		return Result{}, err
	}

	if order.Status == enums.OrderStatusPending {
		updated, changed, err := s.orders.MarkTerminal(ctx, orderID, enums.OrderStatusPaid, in.Method, in.PaymentData)
		if err != nil {
			return Result{}, fmt.Errorf("mark order paid: %w", err)
		}
		if !changed {
			// lost the race to another confirmer or a rejection
			if updated.Status == enums.OrderStatusFailed {
				return Result{}, fmt.Errorf("%w: order %s already failed", errs.ErrInvalidStateTransition, orderID)
			}
			if updated.ActivatedAt != nil {
				return replayed(updated), nil
			}
		} else {
			s.logger.Info("order paid",
				zap.String("order_id", orderID),
				zap.String("user_id", updated.UserID),
				zap.String("method", string(in.Method)),
			)
		}
		order = updated
	} else {
		s.logger.Warn("resuming activation of paid order", zap.String("order_id", orderID), zap.String("user_id", order.UserID))
	}

	if err := s.activate(ctx, order, plan); err != nil {
		return Result{}, err
	}

	return Result{OrderID: orderID, Status: enums.OrderStatusPaid}, nil
}

// Reject records an explicit payment failure. Only pending orders move.
func (s *Service) Reject(ctx context.Context, orderID string, method enums.PaymentMethod, paymentData map[string]any) (Result, error) {
	if err := s.ready(); err != nil {
		return Result{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Result{}, fmt.Errorf("%w: order id is required", errs.ErrValidation)
	}

	updated, changed, err := s.orders.MarkTerminal(ctx, orderID, enums.OrderStatusFailed, method, paymentData)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		if updated.Status == enums.OrderStatusPaid {
			return Result{}, fmt.Errorf("%w: order %s already paid", errs.ErrInvalidStateTransition, orderID)
		}
		return Result{OrderID: orderID, Status: updated.Status, Replayed: true}, nil
	}

	s.logger.Info("order failed", zap.String("order_id", orderID), zap.String("user_id", updated.UserID))
	return Result{OrderID: orderID, Status: enums.OrderStatusFailed}, nil
}

func (s *Service) activate(ctx context.Context, order model.Order, plan rules.Plan) error {
	sub, applied, err := s.subscriptions.Apply(ctx, pgrepo.SubscriptionGrant{
		UserID:       order.UserID,
		PlanType:     plan.PlanType,
		Cycle:        plan.Cycle,
		DurationDays: plan.DurationDays,
		OrderID:      order.ID,
		OrderAt:      order.CreatedAt,
		Policy:       s.policy,
		Now:          s.now().UTC(),
	})
	if err != nil {
		return s.partial(order, "subscription", err)
	}

	if !applied && sub.LastOrderID != order.ID {
		s.logger.Warn("order superseded by a newer grant, keeping current subscription",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.String("last_order_id", sub.LastOrderID),
		)
	}

	expiresAt := sub.ExpiresAt
	projection := model.UserProjection{
		UserID:                order.UserID,
		UserPlan:              rules.EffectivePlan(sub, s.now().UTC()),
		SubscriptionExpiresAt: &expiresAt,
	}
	if err := s.projections.SyncProjection(ctx, projection, sub.UpdatedAt); err != nil {
		return s.partial(order, "projection", err)
	}

	if err := s.orders.MarkActivated(ctx, order.ID); err != nil {
		return s.partial(order, "mark_activated", err)
	}

	s.logger.Info("subscription activated",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("plan_type", string(sub.PlanType)),
		zap.Time("expires_at", sub.ExpiresAt),
		zap.Bool("subscription_written", applied),
	)
	return nil
}

func (s *Service) partial(order model.Order, step string, err error) error {
	s.logger.Error("partial activation, re-confirm order to resume",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("step", step),
		zap.Error(err),
	)
	return fmt.Errorf("%w: order %s at %s: %w", errs.ErrPartialActivation, order.ID, step, err)
}

func (s *Service) lock(ctx context.Context, orderID string) func() {
	if s.locker == nil {
		return func() {}
	}
	unlock, err := s.locker.Lock(ctx, orderID)
	if err != nil {
		s.logger.Warn("activation lock unavailable, continuing unlocked", zap.String("order_id", orderID), zap.Error(err))
		return func() {}
	}
	return unlock
}

func (s *Service) ready() error {
	if s.orders == nil {
		return fmt.Errorf("order store is nil")
	}
	if s.subscriptions == nil {
		return fmt.Errorf("subscription store is nil")
	}
	if s.projections == nil {
		return fmt.Errorf("projection store is nil")
	}
	return nil
}

func checkClaims(order model.Order, in ConfirmedPayment) error {
	if userID := strings.TrimSpace(in.UserID); userID != "" && userID != order.UserID {
		return errs.ErrOrderNotFound
	}
	if in.PlanType != "" && !strings.EqualFold(strings.TrimSpace(string(in.PlanType)), string(order.PlanType)) {
		return fmt.Errorf("%w: plan type %s != %s", errs.ErrPaymentMismatch, in.PlanType, order.PlanType)
	}
	if in.Cycle != "" && !strings.EqualFold(strings.TrimSpace(string(in.Cycle)), string(order.Cycle)) {
		return fmt.Errorf("%w: cycle %s != %s", errs.ErrPaymentMismatch, in.Cycle, order.Cycle)
	}
	return nil
}

func replayed(order model.Order) Result {
	return Result{OrderID: order.ID, Status: order.Status, Replayed: true}
}
