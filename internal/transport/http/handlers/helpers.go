package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/storycraft/billing/internal/domain/errs"
	authsvc "github.com/storycraft/billing/internal/services/auth"
	paymentsvc "github.com/storycraft/billing/internal/services/payments"
	httperrors "github.com/storycraft/billing/internal/transport/http/errors"
)

const (
	maxBodyBytes          = 64 << 10
	storeRetryAfterSecond = "5"
)

var validate = validator.New()

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return validate.Struct(target)
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (authsvc.Identity, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "AUTH_REQUIRED", "authentication required")
		return authsvc.Identity{}, false
	}
	return identity, true
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

// writeServiceError maps the billing error taxonomy onto HTTP.
func writeServiceError(w http.ResponseWriter, err error, orderID string) {
	switch {
	case errors.Is(err, errs.ErrInvalidPlan):
		writeBadRequest(w, "INVALID_PLAN", "unknown plan type or billing cycle")
	case errors.Is(err, errs.ErrPaymentMismatch):
		writeBadRequest(w, "PAYMENT_MISMATCH", "payment does not match the order")
	case errors.Is(err, errs.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, errs.ErrAuthExpired):
		writeUnauthorized(w, "AUTH_EXPIRED", "access token expired")
	case errors.Is(err, errs.ErrAuthRequired):
		writeUnauthorized(w, "AUTH_REQUIRED", "authentication required")
	case errors.Is(err, errs.ErrOrderNotFound):
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: "ORDER_NOT_FOUND", Message: "order not found"})
	case errors.Is(err, errs.ErrSubscriptionNotFound):
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: "SUBSCRIPTION_NOT_FOUND", Message: "subscription not found"})
	case errors.Is(err, errs.ErrInvalidStateTransition):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{Code: "INVALID_STATE_TRANSITION", Message: "order is not in a state that allows this operation"})
	case errors.Is(err, errs.ErrPaymentNotCompleted):
		httperrors.Write(w, http.StatusPaymentRequired, httperrors.APIError{Code: "PAYMENT_NOT_COMPLETED", Message: "payment has not been completed"})
	case errors.Is(err, errs.ErrPartialActivation):
		httperrors.Write(w, http.StatusAccepted, httperrors.ActivationPending{
			Code:    "ACTIVATION_PENDING",
			Message: "payment recorded, activation will be retried",
			OrderID: orderID,
		})
	case errors.Is(err, errs.ErrSimulationDisabled):
		httperrors.Write(w, http.StatusForbidden, httperrors.APIError{Code: "SIMULATION_DISABLED", Message: "simulated payments are disabled"})
	case errors.Is(err, errs.ErrRateLimited):
		var rl *paymentsvc.RateLimitedError
		retryAfter := int64(0)
		if errors.As(err, &rl) {
			retryAfter = rl.RetryAfterSec
			w.Header().Set("Retry-After", paymentsvc.RetryAfter(err))
		}
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "RATE_LIMITED",
			Message:       "too many confirmation attempts",
			RetryAfterSec: retryAfter,
		})
	case errors.Is(err, errs.ErrStoreUnavailable):
		w.Header().Set("Retry-After", storeRetryAfterSecond)
		httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{Code: "STORE_UNAVAILABLE", Message: "storage is temporarily unavailable"})
	case errors.Is(err, errs.ErrGatewayUnavailable):
		httperrors.Write(w, http.StatusGatewayTimeout, httperrors.APIError{Code: "GATEWAY_UNAVAILABLE", Message: "payment gateway did not respond"})
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
