package model

import (
	"time"

	"github.com/storycraft/billing/internal/domain/enums"
)

type Subscription struct {
	UserID      string                   `json:"user_id"`
	PlanType    enums.PlanType           `json:"plan_type"`
	Cycle       enums.BillingCycle       `json:"cycle"`
	Status      enums.SubscriptionStatus `json:"status"`
	StartDate   time.Time                `json:"start_date"`
	ExpiresAt   time.Time                `json:"expires_at"`
	LastOrderID string                   `json:"last_order_id"`
	LastOrderAt time.Time                `json:"last_order_created_at"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}
