package handlers

import (
	"context"
	"net/http"

	"github.com/storycraft/billing/internal/domain/enums"
	paymentsvc "github.com/storycraft/billing/internal/services/payments"
	"github.com/storycraft/billing/internal/transport/http/dto"
	httperrors "github.com/storycraft/billing/internal/transport/http/errors"
)

type PaymentService interface {
	ConfirmViaGateway(ctx context.Context, userID, sessionID string) (paymentsvc.ConfirmResult, error)
	ConfirmViaCallback(ctx context.Context, in paymentsvc.CallbackInput) (paymentsvc.ConfirmResult, error)
	ConfirmSimulated(ctx context.Context, userID string, in paymentsvc.SimulatedInput) (paymentsvc.ConfirmResult, error)
}

type PaymentsHandler struct {
	payments PaymentService
}

func NewPaymentsHandler(payments PaymentService) *PaymentsHandler {
	return &PaymentsHandler{payments: payments}
}

func (h *PaymentsHandler) GatewayConfirm(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	var req dto.GatewayConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.payments.ConfirmViaGateway(r.Context(), identity.UserID, req.SessionID)
	if err != nil {
		writeServiceError(w, err, result.OrderID)
		return
	}
	writeConfirm(w, result)
}

// Callback is called by the payment provider, not by the user. The route is
// guarded by the shared secret middleware instead of a bearer token.
func (h *PaymentsHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	var req dto.CallbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid callback payload")
		return
	}

	result, err := h.payments.ConfirmViaCallback(r.Context(), paymentsvc.CallbackInput{
		OrderID:       req.OrderID,
		PaymentStatus: req.PaymentStatus,
		PaymentData:   req.PaymentData,
	})
	if err != nil {
		writeServiceError(w, err, req.OrderID)
		return
	}
	writeConfirm(w, result)
}

func (h *PaymentsHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	var req dto.SimulateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.payments.ConfirmSimulated(r.Context(), identity.UserID, paymentsvc.SimulatedInput{
		OrderID:  req.OrderID,
		PlanType: enums.PlanType(req.PlanType),
		Cycle:    enums.BillingCycle(req.Cycle),
		Price:    req.Price,
	})
	if err != nil {
		orderID := result.OrderID
		if orderID == "" {
			orderID = req.OrderID
		}
		writeServiceError(w, err, orderID)
		return
	}
	writeConfirm(w, result)
}

func writeConfirm(w http.ResponseWriter, result paymentsvc.ConfirmResult) {
	httperrors.Write(w, http.StatusOK, dto.ConfirmResponse{
		OK:       result.Status == enums.OrderStatusPaid,
		OrderID:  result.OrderID,
		Status:   string(result.Status),
		Replayed: result.Replayed,
	})
}
