package payments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/errs"
	"github.com/storycraft/billing/internal/domain/model"
	"github.com/storycraft/billing/internal/domain/rules"
	"github.com/storycraft/billing/internal/infra/gateway"
	pgrepo "github.com/storycraft/billing/internal/repo/postgres"
	activationsvc "github.com/storycraft/billing/internal/services/activation"
	orderssvc "github.com/storycraft/billing/internal/services/orders"
	subscriptionssvc "github.com/storycraft/billing/internal/services/subscriptions"
)

// memoryBilling backs every store the pipeline needs.
type memoryBilling struct {
	mu          sync.Mutex
	orders      map[string]model.Order
	subs        map[string]model.Subscription
	projections map[string]model.UserProjection
	subWrites   int
	mutations   int
	failApply   error
}

func newMemoryBilling() *memoryBilling {
	return &memoryBilling{
		orders:      map[string]model.Order{},
		subs:        map[string]model.Subscription{},
		projections: map[string]model.UserProjection{},
	}
}

func (m *memoryBilling) Create(_ context.Context, order model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return order, nil
}

func (m *memoryBilling) FindByIDForUser(_ context.Context, orderID, userID string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.UserID != userID {
		return model.Order{}, errs.ErrOrderNotFound
	}
	return order, nil
}

func (m *memoryBilling) ListByUser(_ context.Context, userID string, _ int) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0)
	for _, order := range m.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryBilling) FindByID(_ context.Context, orderID string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return model.Order{}, errs.ErrOrderNotFound
	}
	return order, nil
}

func (m *memoryBilling) MarkTerminal(_ context.Context, orderID string, status enums.OrderStatus, method enums.PaymentMethod, data map[string]any) (model.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return model.Order{}, false, errs.ErrOrderNotFound
	}
	if order.Status != enums.OrderStatusPending {
		return order, false, nil
	}
	order.Status = status
	order.PaymentMethod = method
	order.PaymentData = data
	m.orders[orderID] = order
	m.mutations++
	return order, true, nil
}

func (m *memoryBilling) MarkActivated(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := m.orders[orderID]
	now := time.Now().UTC()
	order.ActivatedAt = &now
	m.orders[orderID] = order
	return nil
}

func (m *memoryBilling) Apply(_ context.Context, grant pgrepo.SubscriptionGrant) (model.Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failApply != nil {
		return model.Subscription{}, false, m.failApply
	}
	if current, ok := m.subs[grant.UserID]; ok && (current.LastOrderID == grant.OrderID || grant.OrderAt.Before(current.LastOrderAt)) {
		return current, false, nil
	}
	sub := model.Subscription{
		UserID:      grant.UserID,
		PlanType:    grant.PlanType,
		Cycle:       grant.Cycle,
		Status:      enums.SubscriptionStatusActive,
		StartDate:   grant.Now,
		ExpiresAt:   rules.EntitlementExpiry(grant.Now, grant.DurationDays),
		LastOrderID: grant.OrderID,
		LastOrderAt: grant.OrderAt,
		UpdatedAt:   grant.Now,
	}
	m.subs[grant.UserID] = sub
	m.subWrites++
	m.mutations++
	return sub, true, nil
}

func (m *memoryBilling) GetByUser(_ context.Context, userID string) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return model.Subscription{}, errs.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (m *memoryBilling) Cancel(_ context.Context, userID string, now time.Time) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return model.Subscription{}, errs.ErrSubscriptionNotFound
	}
	sub.Status = enums.SubscriptionStatusCancelled
	sub.UpdatedAt = now
	m.subs[userID] = sub
	return sub, nil
}

func (m *memoryBilling) GetProjection(_ context.Context, userID string) (model.UserProjection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projections[userID]
	if !ok {
		return model.UserProjection{}, pgrepo.ErrProjectionNotFound
	}
	return p, nil
}

func (m *memoryBilling) SyncProjection(_ context.Context, p model.UserProjection, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projections[p.UserID] = p
	m.mutations++
	return nil
}

type pipeline struct {
	store         *memoryBilling
	orders        *orderssvc.Service
	subscriptions *subscriptionssvc.Service
	gateway       *gateway.Fake
	payments      *Service
}

func newPipeline(allowSimulated bool) pipeline {
	store := newMemoryBilling()
	orders := orderssvc.NewService(store, orderssvc.Config{HoldWindow: 30 * time.Minute})
	activation := activationsvc.NewService(activationsvc.Dependencies{
		Orders:        store,
		Subscriptions: store,
		Projections:   store,
	})
	fake := gateway.NewFake("")
	svc := NewService(Dependencies{
		Orders:     orders,
		Activation: activation,
		Gateway:    fake,
		Config:     Config{AllowSimulated: allowSimulated, GatewayTimeout: time.Second},
	})
	return pipeline{
		store:         store,
		orders:        orders,
		subscriptions: subscriptionssvc.NewService(store, store, nil),
		gateway:       fake,
		payments:      svc,
	}
}

func TestSimulatedBasicMonthlyActivates(t *testing.T) {
	p := newPipeline(true)
	ctx := context.Background()

	order, err := p.orders.Create(ctx, "u1", orderssvc.CreateInput{PlanType: enums.PlanTypeBasicLanguage, Cycle: enums.BillingCycleMonthly})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Price != 89 || order.DurationDays != 30 {
		t.Fatalf("unexpected catalog stamp: %d/%d", order.Price, order.DurationDays)
	}

	res, err := p.payments.ConfirmSimulated(ctx, "u1", SimulatedInput{OrderID: order.ID, PlanType: "basic_language", Cycle: "monthly"})
	if err != nil {
		t.Fatalf("confirm simulated: %v", err)
	}
	if res.OrderID != order.ID || res.Status != enums.OrderStatusPaid {
		t.Fatalf("unexpected confirm result: %+v", res)
	}

	view, err := p.subscriptions.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if view.Status != enums.SubscriptionStatusActive || view.EffectivePlan != "basic_language" {
		t.Fatalf("unexpected subscription view: %+v", view)
	}
	want := time.Now().Add(30 * 24 * time.Hour)
	if view.ExpiresAt == nil || view.ExpiresAt.Sub(want).Abs() > time.Minute {
		t.Fatalf("expiry not ~now+30d: %v", view.ExpiresAt)
	}
	if p.store.orders[order.ID].PaymentMethod != enums.PaymentMethodSimulated {
		t.Fatalf("payment method not recorded as simulated")
	}
}

func TestSimulatedWithoutOrderCreatesOne(t *testing.T) {
	p := newPipeline(true)

	res, err := p.payments.ConfirmSimulated(context.Background(), "u1", SimulatedInput{PlanType: "extended_language", Cycle: "quarterly"})
	if err != nil {
		t.Fatalf("confirm simulated: %v", err)
	}
	order := p.store.orders[res.OrderID]
	if order.Status != enums.OrderStatusPaid || order.Price != 349 {
		t.Fatalf("unexpected created order: %+v", order)
	}
}

func TestSimulatedRejectsForgedPrice(t *testing.T) {
	p := newPipeline(true)
	order, err := p.orders.Create(context.Background(), "u1", orderssvc.CreateInput{PlanType: "basic_language", Cycle: "yearly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	cheap := int64(1)
	_, err = p.payments.ConfirmSimulated(context.Background(), "u1", SimulatedInput{OrderID: order.ID, Price: &cheap})
	if !errors.Is(err, errs.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
	if p.store.subWrites != 0 {
		t.Fatalf("forged price must not activate")
	}
}

func TestSimulatedDisabled(t *testing.T) {
	p := newPipeline(false)

	_, err := p.payments.ConfirmSimulated(context.Background(), "u1", SimulatedInput{PlanType: "basic_language", Cycle: "monthly"})
	if !errors.Is(err, errs.ErrSimulationDisabled) {
		t.Fatalf("expected ErrSimulationDisabled, got %v", err)
	}
	if len(p.store.orders) != 0 {
		t.Fatalf("disabled simulation must not create orders")
	}
}

func TestCallbackFailedMarksOrderFailed(t *testing.T) {
	p := newPipeline(false)
	order, err := p.orders.Create(context.Background(), "u1", orderssvc.CreateInput{PlanType: "basic_language", Cycle: "monthly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	res, err := p.payments.ConfirmViaCallback(context.Background(), CallbackInput{OrderID: order.ID, PaymentStatus: "failed", PaymentData: map[string]any{"code": "card_declined"}})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if res.Status != enums.OrderStatusFailed || p.store.orders[order.ID].Status != enums.OrderStatusFailed {
		t.Fatalf("order should be failed: %+v", res)
	}
	if len(p.store.subs) != 0 || len(p.store.projections) != 0 {
		t.Fatalf("failed callback must not create subscription or projection")
	}

	_, err = p.payments.ConfirmViaCallback(context.Background(), CallbackInput{OrderID: order.ID, PaymentStatus: "success"})
	if !errors.Is(err, errs.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition for failed order, got %v", err)
	}
}

func TestCallbackSuccessIsIdempotent(t *testing.T) {
	p := newPipeline(false)
	order, err := p.orders.Create(context.Background(), "u1", orderssvc.CreateInput{PlanType: "basic_language", Cycle: "monthly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	for i := 0; i < 2; i++ {
		res, err := p.payments.ConfirmViaCallback(context.Background(), CallbackInput{OrderID: order.ID, PaymentStatus: "SUCCESS"})
		if err != nil {
			t.Fatalf("callback #%d: %v", i+1, err)
		}
		if res.Status != enums.OrderStatusPaid {
			t.Fatalf("unexpected status on callback #%d: %s", i+1, res.Status)
		}
	}
	if p.store.subWrites != 1 {
		t.Fatalf("expected one subscription write, got %d", p.store.subWrites)
	}
}

func TestGatewayUnpaidSessionMutatesNothing(t *testing.T) {
	p := newPipeline(false)
	ctx := context.Background()
	order, err := p.orders.Create(ctx, "u1", orderssvc.CreateInput{PlanType: "basic_language", Cycle: "monthly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	checkout, err := p.payments.CreateCheckout(ctx, "u1", order.ID)
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}

	_, err = p.payments.ConfirmViaGateway(ctx, "u1", checkout.SessionID)
	if !errors.Is(err, errs.ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
	if p.store.mutations != 0 {
		t.Fatalf("unpaid session must not mutate state, got %d writes", p.store.mutations)
	}
	if p.store.orders[order.ID].Status != enums.OrderStatusPending {
		t.Fatalf("order must stay pending")
	}
}

func TestGatewayPaidSessionActivates(t *testing.T) {
	p := newPipeline(false)
	ctx := context.Background()
	order, err := p.orders.Create(ctx, "u1", orderssvc.CreateInput{PlanType: "extended_language", Cycle: "monthly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	checkout, err := p.payments.CreateCheckout(ctx, "u1", order.ID)
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if err := p.gateway.SetPaymentStatus(checkout.SessionID, gateway.PaymentStatusPaid); err != nil {
		t.Fatalf("mark session paid: %v", err)
	}

	res, err := p.payments.ConfirmViaGateway(ctx, "u1", checkout.SessionID)
	if err != nil {
		t.Fatalf("confirm via gateway: %v", err)
	}
	if res.Status != enums.OrderStatusPaid {
		t.Fatalf("unexpected status: %s", res.Status)
	}
	stored := p.store.orders[order.ID]
	if stored.PaymentMethod != enums.PaymentMethodGateway || stored.PaymentData["session_id"] != checkout.SessionID {
		t.Fatalf("gateway metadata not recorded: %+v", stored)
	}

	if _, err := p.payments.ConfirmViaGateway(ctx, "intruder", checkout.SessionID); !errors.Is(err, errs.ErrOrderNotFound) {
		t.Fatalf("foreign user must not confirm session, got %v", err)
	}
}

func TestGatewayPartialActivationReportsOrderID(t *testing.T) {
	p := newPipeline(false)
	ctx := context.Background()
	order, err := p.orders.Create(ctx, "u1", orderssvc.CreateInput{PlanType: "basic_language", Cycle: "monthly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	checkout, err := p.payments.CreateCheckout(ctx, "u1", order.ID)
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if err := p.gateway.SetPaymentStatus(checkout.SessionID, gateway.PaymentStatusPaid); err != nil {
		t.Fatalf("mark session paid: %v", err)
	}
	p.store.failApply = errs.ErrStoreUnavailable

	res, err := p.payments.ConfirmViaGateway(ctx, "u1", checkout.SessionID)
	if !errors.Is(err, errs.ErrPartialActivation) {
		t.Fatalf("expected partial activation, got %v", err)
	}
	if res.OrderID != order.ID {
		t.Fatalf("partial activation must carry the order id, got %q want %q", res.OrderID, order.ID)
	}
}

type slowGateway struct{ gateway.Fake }

func (g *slowGateway) RetrieveSession(ctx context.Context, _ string) (gateway.Session, error) {
	<-ctx.Done()
	return gateway.Session{}, ctx.Err()
}

func TestGatewayTimeoutIsHardFailure(t *testing.T) {
	p := newPipeline(false)
	svc := NewService(Dependencies{
		Orders:     p.orders,
		Activation: p.payments.activation,
		Gateway:    &slowGateway{},
		Config:     Config{GatewayTimeout: 20 * time.Millisecond},
	})

	_, err := svc.ConfirmViaGateway(context.Background(), "u1", "cs_slow")
	if !errors.Is(err, errs.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if errors.Is(err, errs.ErrPaymentNotCompleted) {
		t.Fatalf("timeout must not be reported as unpaid")
	}
}

type denyLimiter struct{}

func (denyLimiter) AllowConfirm(context.Context, string) (int64, bool, error) {
	return 7, false, nil
}

func TestConfirmRateLimited(t *testing.T) {
	p := newPipeline(true)
	svc := NewService(Dependencies{
		Orders:     p.orders,
		Activation: p.payments.activation,
		Gateway:    p.gateway,
		Limiter:    denyLimiter{},
		Config:     Config{AllowSimulated: true},
	})

	_, err := svc.ConfirmSimulated(context.Background(), "u1", SimulatedInput{PlanType: "basic_language", Cycle: "monthly"})
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if RetryAfter(err) != "7" {
		t.Fatalf("unexpected retry after: %q", RetryAfter(err))
	}
}
