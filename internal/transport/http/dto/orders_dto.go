package dto

import "time"

type OrderCreateRequest struct {
	PlanType string `json:"plan_type" validate:"required,max=64"`
	Cycle    string `json:"cycle" validate:"required,max=32"`
}

type OrderResponse struct {
	OrderID       string         `json:"order_id"`
	UserID        string         `json:"user_id"`
	PlanType      string         `json:"plan_type"`
	Cycle         string         `json:"cycle"`
	Price         int64          `json:"price"`
	DurationDays  int            `json:"duration_days"`
	Status        string         `json:"status"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	PaymentData   map[string]any `json:"payment_data,omitempty"`
	Abandoned     bool           `json:"abandoned"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

type OrderListResponse struct {
	Items []OrderResponse `json:"items"`
}

type CheckoutResponse struct {
	OrderID   string `json:"order_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}
