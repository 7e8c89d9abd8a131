package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/errs"
	"github.com/storycraft/billing/internal/domain/model"
	"github.com/storycraft/billing/internal/domain/rules"
	"github.com/storycraft/billing/internal/infra/gateway"
	activationsvc "github.com/storycraft/billing/internal/services/activation"
	orderssvc "github.com/storycraft/billing/internal/services/orders"
)

const (
	callbackStatusSuccess = "success"
	defaultGatewayTimeout = 10 * time.Second
)

type OrderService interface {
	Create(ctx context.Context, userID string, in orderssvc.CreateInput) (model.Order, error)
	Get(ctx context.Context, userID, orderID string) (orderssvc.View, error)
}

type Activator interface {
	Confirm(ctx context.Context, in activationsvc.ConfirmedPayment) (activationsvc.Result, error)
	Reject(ctx context.Context, orderID string, method enums.PaymentMethod, paymentData map[string]any) (activationsvc.Result, error)
}

type Gateway interface {
	CreateSession(ctx context.Context, in gateway.CreateSessionInput) (gateway.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (gateway.Session, error)
}

type ConfirmLimiter interface {
	AllowConfirm(ctx context.Context, userID string) (int64, bool, error)
}

// RateLimitedError carries the wait before the next confirmation attempt.
type RateLimitedError struct {
	RetryAfterSec int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSec)
}

func (e *RateLimitedError) Unwrap() error {
	return errs.ErrRateLimited
}

type Config struct {
	AllowSimulated bool
	GatewayTimeout time.Duration
}

type Dependencies struct {
	Orders     OrderService
	Activation Activator
	Gateway    Gateway
	Limiter    ConfirmLimiter
	Config     Config
	Logger     *zap.Logger
}

// Service routes the three confirmation channels into a single activation call.
// No channel writes subscriptions or projections on its own.
type Service struct {
	orders     OrderService
	activation Activator
	gateway    Gateway
	limiter    ConfirmLimiter
	cfg        Config
	logger     *zap.Logger
}

type ConfirmResult struct {
	OrderID  string
	Status   enums.OrderStatus
	Replayed bool
}

type CallbackInput struct {
	OrderID       string
	PaymentStatus string
	PaymentData   map[string]any
}

type SimulatedInput struct {
	OrderID  string
	PlanType enums.PlanType
	Cycle    enums.BillingCycle
	Price    *int64
}

type CheckoutResult struct {
	OrderID   string
	SessionID string
	URL       string
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	return &Service{
		orders:     deps.Orders,
		activation: deps.Activation,
		gateway:    deps.Gateway,
		limiter:    deps.Limiter,
		cfg:        cfg,
		logger:     logger,
	}
}

// CreateCheckout opens a hosted checkout session for a pending order.
func (s *Service) CreateCheckout(ctx context.Context, userID, orderID string) (CheckoutResult, error) {
	if s.orders == nil || s.gateway == nil {
		return CheckoutResult{}, fmt.Errorf("payments dependencies are not configured")
	}

	view, err := s.orders.Get(ctx, userID, orderID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if view.Status != enums.OrderStatusPending {
		return CheckoutResult{}, fmt.Errorf("%w: order %s is %s", errs.ErrInvalidStateTransition, view.ID, view.Status)
	}
	if view.Abandoned {
		return CheckoutResult{}, fmt.Errorf("%w: order %s hold window elapsed", errs.ErrInvalidStateTransition, view.ID)
	}
	plan, err := rules.PriceOf(view.PlanType, view.Cycle)
	if err != nil {
		return CheckoutResult{}, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.CreateSession(gwCtx, gateway.CreateSessionInput{
		OrderID:     view.ID,
		UserID:      view.UserID,
		PlanType:    string(view.PlanType),
		Cycle:       string(view.Cycle),
		DisplayName: plan.DisplayName,
		Amount:      view.Price,
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: create checkout session: %w", errs.ErrGatewayUnavailable, err)
	}

	return CheckoutResult{OrderID: view.ID, SessionID: session.ID, URL: session.URL}, nil
}

// ConfirmViaGateway asks the gateway whether the session was paid. Anything
// other than a definite "paid" leaves every record untouched. A timeout is a
// hard failure and never read as an unpaid charge.
func (s *Service) ConfirmViaGateway(ctx context.Context, userID, sessionID string) (ConfirmResult, error) {
	if s.gateway == nil || s.activation == nil || s.orders == nil {
		return ConfirmResult{}, fmt.Errorf("payments dependencies are not configured")
	}
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	if userID == "" {
		return ConfirmResult{}, errs.ErrAuthRequired
	}
	if sessionID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: session id is required", errs.ErrValidation)
	}
	if err := s.allow(ctx, userID); err != nil {
		return ConfirmResult{}, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	session, err := s.gateway.RetrieveSession(gwCtx, sessionID)
	cancel()
	if err != nil {
		if errors.Is(err, gateway.ErrSessionNotFound) {
			return ConfirmResult{}, fmt.Errorf("%w: unknown checkout session", errs.ErrValidation)
		}
		s.logger.Warn("checkout session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return ConfirmResult{}, fmt.Errorf("%w: %w", errs.ErrGatewayUnavailable, err)
	}

	if !strings.EqualFold(session.PaymentStatus, gateway.PaymentStatusPaid) {
		return ConfirmResult{}, fmt.Errorf("%w: session %s is %s", errs.ErrPaymentNotCompleted, sessionID, session.PaymentStatus)
	}

	orderID := strings.TrimSpace(session.Metadata["order_id"])
	if orderID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: session %s has no order", errs.ErrValidation, sessionID)
	}
	if metaUser := strings.TrimSpace(session.Metadata["user_id"]); metaUser != "" && metaUser != userID {
		return ConfirmResult{}, errs.ErrOrderNotFound
	}

	view, err := s.orders.Get(ctx, userID, orderID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if session.AmountTotal > 0 && session.AmountTotal != view.Price*100 {
		return ConfirmResult{}, fmt.Errorf("%w: paid %d, order %s costs %d", errs.ErrPaymentMismatch, session.AmountTotal, orderID, view.Price*100)
	}

	return s.confirm(ctx, activationsvc.ConfirmedPayment{
		OrderID:  orderID,
		UserID:   userID,
		PlanType: enums.PlanType(session.Metadata["plan_type"]),
		Cycle:    enums.BillingCycle(session.Metadata["cycle"]),
		Method:   enums.PaymentMethodGateway,
		PaymentData: map[string]any{
			"session_id":   session.ID,
			"amount_total": session.AmountTotal,
			"currency":     session.Currency,
		},
	})
}

// ConfirmViaCallback trusts the caller's status. Success activates; any other
// status fails the order without touching the subscription.
func (s *Service) ConfirmViaCallback(ctx context.Context, in CallbackInput) (ConfirmResult, error) {
	if s.activation == nil {
		return ConfirmResult{}, fmt.Errorf("payments dependencies are not configured")
	}
	orderID := strings.TrimSpace(in.OrderID)
	status := strings.ToLower(strings.TrimSpace(in.PaymentStatus))
	if orderID == "" || status == "" {
		return ConfirmResult{}, fmt.Errorf("%w: order_id and payment_status are required", errs.ErrValidation)
	}

	if status != callbackStatusSuccess {
		data := copyData(in.PaymentData)
		data["payment_status"] = status
		res, err := s.activation.Reject(ctx, orderID, enums.PaymentMethodCallback, data)
		if err != nil {
			return ConfirmResult{}, err
		}
		return ConfirmResult{OrderID: res.OrderID, Status: res.Status, Replayed: res.Replayed}, nil
	}

	return s.confirm(ctx, activationsvc.ConfirmedPayment{
		OrderID:     orderID,
		Method:      enums.PaymentMethodCallback,
		PaymentData: copyData(in.PaymentData),
	})
}

// ConfirmSimulated stands in for a live gateway outside production. With no
// order id it creates the order first.
func (s *Service) ConfirmSimulated(ctx context.Context, userID string, in SimulatedInput) (ConfirmResult, error) {
	if !s.cfg.AllowSimulated {
		return ConfirmResult{}, errs.ErrSimulationDisabled
	}
	if s.orders == nil || s.activation == nil {
		return ConfirmResult{}, fmt.Errorf("payments dependencies are not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ConfirmResult{}, errs.ErrAuthRequired
	}
	if err := s.allow(ctx, userID); err != nil {
		return ConfirmResult{}, err
	}

	var order model.Order
	if orderID := strings.TrimSpace(in.OrderID); orderID != "" {
		view, err := s.orders.Get(ctx, userID, orderID)
		if err != nil {
			return ConfirmResult{}, err
		}
		order = view.Order
	} else {
		created, err := s.orders.Create(ctx, userID, orderssvc.CreateInput{PlanType: in.PlanType, Cycle: in.Cycle})
		if err != nil {
			return ConfirmResult{}, err
		}
		order = created
	}

	if in.Price != nil && *in.Price != order.Price {
		return ConfirmResult{}, fmt.Errorf("%w: price %d != %d", errs.ErrPaymentMismatch, *in.Price, order.Price)
	}

	return s.confirm(ctx, activationsvc.ConfirmedPayment{
		OrderID:  order.ID,
		UserID:   userID,
		PlanType: in.PlanType,
		Cycle:    in.Cycle,
		Method:   enums.PaymentMethodSimulated,
		PaymentData: map[string]any{
			"simulated": true,
			"price":     order.Price,
		},
	})
}

func (s *Service) confirm(ctx context.Context, in activationsvc.ConfirmedPayment) (ConfirmResult, error) {
	res, err := s.activation.Confirm(ctx, in)
	if err != nil {
		// callers surface the order id on partial activations
		return ConfirmResult{OrderID: in.OrderID}, err
	}
	return ConfirmResult{OrderID: res.OrderID, Status: res.Status, Replayed: res.Replayed}, nil
}

func (s *Service) allow(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}
	retryAfter, ok, err := s.limiter.AllowConfirm(ctx, userID)
	if err != nil {
		// the throttle is best effort; confirmations are idempotent anyway
		s.logger.Warn("confirm rate limiter unavailable", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if !ok {
		return &RateLimitedError{RetryAfterSec: retryAfter}
	}
	return nil
}

func copyData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RetryAfter extracts the wait from a rate limit error, or 0.
func RetryAfter(err error) string {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return strconv.FormatInt(rl.RetryAfterSec, 10)
	}
	return ""
}
