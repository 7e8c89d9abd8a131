package dto

type GatewayConfirmRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}

type CallbackRequest struct {
	OrderID       string         `json:"order_id" validate:"required,max=64"`
	PaymentStatus string         `json:"payment_status" validate:"required,max=32"`
	PaymentData   map[string]any `json:"payment_data,omitempty"`
}

type SimulateRequest struct {
	OrderID  string `json:"order_id,omitempty" validate:"omitempty,max=64"`
	PlanType string `json:"plan_type" validate:"required_without=OrderID,max=64"`
	Cycle    string `json:"cycle" validate:"required_without=OrderID,max=32"`
	Price    *int64 `json:"price,omitempty" validate:"omitempty,gt=0"`
}

type ConfirmResponse struct {
	OK       bool   `json:"ok"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Replayed bool   `json:"replayed"`
}
