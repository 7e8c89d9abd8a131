package dto

import "time"

type SubscriptionResponse struct {
	UserID        string     `json:"user_id"`
	PlanType      string     `json:"plan_type,omitempty"`
	Cycle         string     `json:"cycle,omitempty"`
	Status        string     `json:"status"`
	EffectivePlan string     `json:"effective_plan"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type EntitlementsResponse struct {
	UserID                string     `json:"user_id"`
	UserPlan              string     `json:"user_plan"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	IsPaid                bool       `json:"is_paid"`
}

type PlanResponse struct {
	PlanType        string `json:"plan_type"`
	Cycle           string `json:"cycle"`
	DisplayName     string `json:"display_name"`
	Price           int64  `json:"price"`
	ListPrice       int64  `json:"list_price"`
	DiscountPercent int    `json:"discount_percent"`
	DurationDays    int    `json:"duration_days"`
}

type PlanListResponse struct {
	Items []PlanResponse `json:"items"`
}

type HealthResponse struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}
