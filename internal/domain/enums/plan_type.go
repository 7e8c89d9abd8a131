package enums

type PlanType string

const (
	PlanTypeBasicLanguage    PlanType = "basic_language"
	PlanTypeExtendedLanguage PlanType = "extended_language"
)

// PlanFree is the effective plan of a user without an active subscription.
const PlanFree = "free"
