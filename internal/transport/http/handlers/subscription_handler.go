package handlers

import (
	"context"
	"net/http"

	entsvc "github.com/storycraft/billing/internal/services/entitlements"
	subscriptionssvc "github.com/storycraft/billing/internal/services/subscriptions"
	"github.com/storycraft/billing/internal/transport/http/dto"
	httperrors "github.com/storycraft/billing/internal/transport/http/errors"
)

type SubscriptionService interface {
	Get(ctx context.Context, userID string) (subscriptionssvc.View, error)
	Cancel(ctx context.Context, userID string) (subscriptionssvc.View, error)
}

type EntitlementService interface {
	Get(ctx context.Context, userID string) (entsvc.Snapshot, error)
}

type SubscriptionHandler struct {
	subscriptions SubscriptionService
	entitlements  EntitlementService
}

func NewSubscriptionHandler(subscriptions SubscriptionService, entitlements EntitlementService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, entitlements: entitlements}
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.subscriptions == nil {
		writeInternal(w, "SUBSCRIPTIONS_SERVICE_UNAVAILABLE", "subscriptions service is unavailable")
		return
	}

	view, err := h.subscriptions.Get(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err, "")
		return
	}
	httperrors.Write(w, http.StatusOK, toSubscriptionResponse(view))
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.subscriptions == nil {
		writeInternal(w, "SUBSCRIPTIONS_SERVICE_UNAVAILABLE", "subscriptions service is unavailable")
		return
	}

	view, err := h.subscriptions.Cancel(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err, "")
		return
	}
	httperrors.Write(w, http.StatusOK, toSubscriptionResponse(view))
}

func (h *SubscriptionHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.entitlements == nil {
		writeInternal(w, "ENTITLEMENTS_SERVICE_UNAVAILABLE", "entitlements service is unavailable")
		return
	}

	snapshot, err := h.entitlements.Get(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err, "")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.EntitlementsResponse{
		UserID:                snapshot.UserID,
		UserPlan:              snapshot.Plan,
		SubscriptionExpiresAt: snapshot.ExpiresAt,
		IsPaid:                snapshot.IsPaid,
	})
}

func toSubscriptionResponse(view subscriptionssvc.View) dto.SubscriptionResponse {
	return dto.SubscriptionResponse{
		UserID:        view.UserID,
		PlanType:      string(view.PlanType),
		Cycle:         string(view.Cycle),
		Status:        string(view.Status),
		EffectivePlan: view.EffectivePlan,
		StartDate:     view.StartDate,
		ExpiresAt:     view.ExpiresAt,
	}
}
