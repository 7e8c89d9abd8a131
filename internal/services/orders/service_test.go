package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/errs"
	"github.com/storycraft/billing/internal/domain/model"
	pgrepo "github.com/storycraft/billing/internal/repo/postgres"
)

type orderStoreStub struct {
	orders    map[string]model.Order
	conflicts int
}

func newOrderStoreStub() *orderStoreStub {
	return &orderStoreStub{orders: map[string]model.Order{}}
}

func (s *orderStoreStub) Create(_ context.Context, order model.Order) (model.Order, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return model.Order{}, pgrepo.ErrOrderIDConflict
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *orderStoreStub) FindByIDForUser(_ context.Context, orderID, userID string) (model.Order, error) {
	order, ok := s.orders[orderID]
	if !ok || order.UserID != userID {
		return model.Order{}, errs.ErrOrderNotFound
	}
	return order, nil
}

func (s *orderStoreStub) ListByUser(_ context.Context, userID string, limit int) ([]model.Order, error) {
	out := make([]model.Order, 0)
	for _, order := range s.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestCreateStampsCatalogPrice(t *testing.T) {
	store := newOrderStoreStub()
	svc := NewService(store, Config{HoldWindow: 30 * time.Minute})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	order, err := svc.Create(context.Background(), "u1", CreateInput{PlanType: "basic_language", Cycle: "monthly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Price != 89 || order.DurationDays != 30 {
		t.Fatalf("unexpected price/duration: %d/%d", order.Price, order.DurationDays)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("unexpected status: %s", order.Status)
	}
	if !order.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected hold window end: %s", order.ExpiresAt)
	}
	if !strings.HasPrefix(order.ID, "ORD20260301100000") || len(order.ID) != len("ORD20260301100000")+12 {
		t.Fatalf("unexpected order id: %s", order.ID)
	}
}

func TestCreateRejectsUnknownPlan(t *testing.T) {
	svc := NewService(newOrderStoreStub(), Config{})

	_, err := svc.Create(context.Background(), "u1", CreateInput{PlanType: "premium", Cycle: "monthly"})
	if !errors.Is(err, errs.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestCreateRetriesOnIDConflict(t *testing.T) {
	store := newOrderStoreStub()
	store.conflicts = 2
	svc := NewService(store, Config{})

	if _, err := svc.Create(context.Background(), "u1", CreateInput{PlanType: "extended_language", Cycle: "yearly"}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(store.orders) != 1 {
		t.Fatalf("expected one stored order, got %d", len(store.orders))
	}
}

func TestGetHidesForeignOrders(t *testing.T) {
	store := newOrderStoreStub()
	svc := NewService(store, Config{})
	order, err := svc.Create(context.Background(), "owner", CreateInput{PlanType: "basic_language", Cycle: "quarterly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := svc.Get(context.Background(), "intruder", order.ID); !errors.Is(err, errs.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "owner", "ORD-missing"); !errors.Is(err, errs.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for absent order, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "owner", order.ID); err != nil {
		t.Fatalf("get own order: %v", err)
	}
}

func TestListMarksAbandonedOrders(t *testing.T) {
	store := newOrderStoreStub()
	svc := NewService(store, Config{HoldWindow: 30 * time.Minute})
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	svc.now = func() time.Time { return base }
	old, err := svc.Create(context.Background(), "u1", CreateInput{PlanType: "basic_language", Cycle: "monthly"})
	if err != nil {
		t.Fatalf("create old order: %v", err)
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	fresh, err := svc.Create(context.Background(), "u1", CreateInput{PlanType: "basic_language", Cycle: "yearly"})
	if err != nil {
		t.Fatalf("create fresh order: %v", err)
	}

	all, err := svc.List(context.Background(), "u1", ListOptions{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(all) != 2 || all[0].ID != fresh.ID || all[1].ID != old.ID {
		t.Fatalf("unexpected order listing: %+v", all)
	}
	if !all[1].Abandoned || all[0].Abandoned {
		t.Fatalf("unexpected abandoned flags: fresh=%v old=%v", all[0].Abandoned, all[1].Abandoned)
	}
	if all[1].Status != enums.OrderStatusPending {
		t.Fatalf("abandoned order must stay pending, got %s", all[1].Status)
	}

	active, err := svc.List(context.Background(), "u1", ListOptions{ActiveOnly: true})
	if err != nil {
		t.Fatalf("list active orders: %v", err)
	}
	if len(active) != 1 || active[0].ID != fresh.ID {
		t.Fatalf("unexpected active listing: %+v", active)
	}
}
