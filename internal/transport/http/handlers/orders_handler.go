package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/model"
	orderssvc "github.com/storycraft/billing/internal/services/orders"
	paymentsvc "github.com/storycraft/billing/internal/services/payments"
	"github.com/storycraft/billing/internal/transport/http/dto"
	httperrors "github.com/storycraft/billing/internal/transport/http/errors"
)

type OrderService interface {
	Create(ctx context.Context, userID string, in orderssvc.CreateInput) (model.Order, error)
	Get(ctx context.Context, userID, orderID string) (orderssvc.View, error)
	List(ctx context.Context, userID string, opts orderssvc.ListOptions) ([]orderssvc.View, error)
}

type CheckoutService interface {
	CreateCheckout(ctx context.Context, userID, orderID string) (paymentsvc.CheckoutResult, error)
}

type OrdersHandler struct {
	orders   OrderService
	checkout CheckoutService
}

func NewOrdersHandler(orders OrderService, checkout CheckoutService) *OrdersHandler {
	return &OrdersHandler{orders: orders, checkout: checkout}
}

func (h *OrdersHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		writeInternal(w, "ORDERS_SERVICE_UNAVAILABLE", "orders service is unavailable")
		return
	}

	var req dto.OrderCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	order, err := h.orders.Create(r.Context(), identity.UserID, orderssvc.CreateInput{
		PlanType: enums.PlanType(req.PlanType),
		Cycle:    enums.BillingCycle(req.Cycle),
	})
	if err != nil {
		writeServiceError(w, err, "")
		return
	}

	httperrors.Write(w, http.StatusCreated, toOrderResponse(orderssvc.View{Order: order}))
}

func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		writeInternal(w, "ORDERS_SERVICE_UNAVAILABLE", "orders service is unavailable")
		return
	}

	opts := orderssvc.ListOptions{}
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("active_only")); raw != "" {
		activeOnly, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "VALIDATION_ERROR", "active_only must be a boolean")
			return
		}
		opts.ActiveOnly = activeOnly
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeBadRequest(w, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	views, err := h.orders.List(r.Context(), identity.UserID, opts)
	if err != nil {
		writeServiceError(w, err, "")
		return
	}

	items := make([]dto.OrderResponse, 0, len(views))
	for _, view := range views {
		items = append(items, toOrderResponse(view))
	}
	httperrors.Write(w, http.StatusOK, dto.OrderListResponse{Items: items})
}

func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		writeInternal(w, "ORDERS_SERVICE_UNAVAILABLE", "orders service is unavailable")
		return
	}

	orderID := chi.URLParam(r, "orderId")
	view, err := h.orders.Get(r.Context(), identity.UserID, orderID)
	if err != nil {
		writeServiceError(w, err, orderID)
		return
	}

	httperrors.Write(w, http.StatusOK, toOrderResponse(view))
}

func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.checkout == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	orderID := chi.URLParam(r, "orderId")
	result, err := h.checkout.CreateCheckout(r.Context(), identity.UserID, orderID)
	if err != nil {
		writeServiceError(w, err, orderID)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.CheckoutResponse{
		OrderID:   result.OrderID,
		SessionID: result.SessionID,
		URL:       result.URL,
	})
}

func toOrderResponse(view orderssvc.View) dto.OrderResponse {
	return dto.OrderResponse{
		OrderID:       view.ID,
		UserID:        view.UserID,
		PlanType:      string(view.PlanType),
		Cycle:         string(view.Cycle),
		Price:         view.Price,
		DurationDays:  view.DurationDays,
		Status:        string(view.Status),
		PaymentMethod: string(view.PaymentMethod),
		PaymentData:   view.PaymentData,
		Abandoned:     view.Abandoned,
		CreatedAt:     view.CreatedAt,
		UpdatedAt:     view.UpdatedAt,
		ExpiresAt:     view.ExpiresAt,
	}
}
