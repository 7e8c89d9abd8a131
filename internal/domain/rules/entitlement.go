package rules

import (
	"time"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/model"
)

// EffectiveStatus derives the read-time status of a stored subscription.
// Expiry is never persisted; it is computed against now on every read.
func EffectiveStatus(sub model.Subscription, now time.Time) enums.SubscriptionStatus {
	if sub.Status == enums.SubscriptionStatusCancelled {
		return enums.SubscriptionStatusCancelled
	}
	if ExpiredAt(sub.ExpiresAt, now) {
		return enums.SubscriptionStatusExpired
	}
	return enums.SubscriptionStatusActive
}

// ExpiredAt reports whether an entitlement window ending at expiresAt has
// lapsed. A window ending exactly at now is still active.
func ExpiredAt(expiresAt, now time.Time) bool {
	return expiresAt.Before(now)
}

// EffectivePlan is the plan a user may use right now.
func EffectivePlan(sub model.Subscription, now time.Time) string {
	if EffectiveStatus(sub, now) != enums.SubscriptionStatusActive {
		return enums.PlanFree
	}
	return string(sub.PlanType)
}
