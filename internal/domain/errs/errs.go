// Package errs holds the error taxonomy shared by the billing services.
package errs

import "errors"

var (
	ErrValidation             = errors.New("validation error")
	ErrInvalidPlan            = errors.New("invalid plan")
	ErrOrderNotFound          = errors.New("order not found")
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrPaymentNotCompleted    = errors.New("payment not completed")
	ErrPaymentMismatch        = errors.New("payment does not match order")
	ErrAuthRequired           = errors.New("authentication required")
	ErrAuthExpired            = errors.New("authentication expired")
	ErrPartialActivation      = errors.New("partial activation failure")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrSimulationDisabled     = errors.New("simulated payments disabled")
	ErrRateLimited            = errors.New("rate limited")
)
