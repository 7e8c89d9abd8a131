package enums

type SubscriptionStatus string

// Only active and cancelled are stored. Expired and none are derived on read.
const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusNone      SubscriptionStatus = "none"
)
