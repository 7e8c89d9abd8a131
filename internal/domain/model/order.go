package model

import (
	"time"

	"github.com/storycraft/billing/internal/domain/enums"
)

type Order struct {
	ID            string              `json:"order_id"`
	UserID        string              `json:"user_id"`
	PlanType      enums.PlanType      `json:"plan_type"`
	Cycle         enums.BillingCycle  `json:"cycle"`
	Price         int64               `json:"price"`
	DurationDays  int                 `json:"duration_days"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method,omitempty"`
	PaymentData   map[string]any      `json:"payment_data,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
	ActivatedAt   *time.Time          `json:"activated_at,omitempty"`
}

// Abandoned reports a pending order whose hold window has passed.
// Such orders stay pending; they are never forced to failed.
func (o Order) Abandoned(now time.Time) bool {
	return o.Status == enums.OrderStatusPending && now.After(o.ExpiresAt)
}
