package model

import "time"

// UserProjection is the plan cache embedded in the user record.
type UserProjection struct {
	UserID                string     `json:"user_id"`
	UserPlan              string     `json:"user_plan"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
