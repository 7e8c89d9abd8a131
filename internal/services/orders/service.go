package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/errs"
	"github.com/storycraft/billing/internal/domain/model"
	"github.com/storycraft/billing/internal/domain/rules"
	pgrepo "github.com/storycraft/billing/internal/repo/postgres"
)

const (
	defaultHoldWindow = 30 * time.Minute
	defaultListLimit  = 100
	maxCreateAttempts = 3
)

type Store interface {
	Create(ctx context.Context, order model.Order) (model.Order, error)
	FindByIDForUser(ctx context.Context, orderID, userID string) (model.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Order, error)
}

type Config struct {
	HoldWindow time.Duration
}

type Service struct {
	store Store
	cfg   Config
	now   func() time.Time
	newID func(now time.Time) string
}

type CreateInput struct {
	PlanType enums.PlanType
	Cycle    enums.BillingCycle
}

// View is an order plus the read-time abandoned flag.
type View struct {
	model.Order
	Abandoned bool
}

type ListOptions struct {
	ActiveOnly bool
	Limit      int
}

func NewService(store Store, cfg Config) *Service {
	if cfg.HoldWindow <= 0 {
		cfg.HoldWindow = defaultHoldWindow
	}
	return &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		newID: NewOrderID,
	}
}

// Create records a pending purchase intent. Price and duration always come
// from the catalog.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (model.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Order{}, errs.ErrAuthRequired
	}
	if s.store == nil {
		return model.Order{}, fmt.Errorf("order store is nil")
	}

	plan, err := rules.PriceOf(in.PlanType, in.Cycle)
	if err != nil {
		return model.Order{}, err
	}

	now := s.now().UTC()
	order := model.Order{
		UserID:       userID,
		PlanType:     plan.PlanType,
		Cycle:        plan.Cycle,
		Price:        plan.Price,
		DurationDays: plan.DurationDays,
		Status:       enums.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.HoldWindow),
	}

	for attempt := 1; ; attempt++ {
		order.ID = s.newID(now)
		created, err := s.store.Create(ctx, order)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, pgrepo.ErrOrderIDConflict) || attempt >= maxCreateAttempts {
			return model.Order{}, err
		}
	}
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (View, error) {
	if strings.TrimSpace(userID) == "" {
		return View{}, errs.ErrAuthRequired
	}
	if s.store == nil {
		return View{}, fmt.Errorf("order store is nil")
	}

	order, err := s.store.FindByIDForUser(ctx, strings.TrimSpace(orderID), strings.TrimSpace(userID))
	if err != nil {
		return View{}, err
	}
	return View{Order: order, Abandoned: order.Abandoned(s.now().UTC())}, nil
}

// List returns the user's orders newest first. ActiveOnly drops abandoned
// pending orders from purchase UIs; they are still stored as pending.
func (s *Service) List(ctx context.Context, userID string, opts ListOptions) ([]View, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.ErrAuthRequired
	}
	if s.store == nil {
		return nil, fmt.Errorf("order store is nil")
	}
	limit := opts.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	records, err := s.store.ListByUser(ctx, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]View, 0, len(records))
	for _, order := range records {
		abandoned := order.Abandoned(now)
		if opts.ActiveOnly && abandoned {
			continue
		}
		out = append(out, View{Order: order, Abandoned: abandoned})
	}
	return out, nil
}

// NewOrderID is a second-resolution timestamp plus a random suffix, so ids
// sort roughly by creation and stay unique across processes.
func NewOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return "ORD" + now.UTC().Format("20060102150405") + strings.ToUpper(suffix)
}
