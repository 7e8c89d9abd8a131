package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/errs"
)

const millisPerDay = int64(86400000)

// Plan is one purchasable plan/cycle combination. Prices are whole CNY.
type Plan struct {
	PlanType     enums.PlanType
	Cycle        enums.BillingCycle
	Price        int64
	ListPrice    int64
	DurationDays int
	DisplayName  string
}

type planKey struct {
	planType enums.PlanType
	cycle    enums.BillingCycle
}

var catalog = []Plan{
	{PlanType: enums.PlanTypeBasicLanguage, Cycle: enums.BillingCycleMonthly, Price: 89, ListPrice: 99, DurationDays: 30, DisplayName: "Basic Language Monthly"},
	{PlanType: enums.PlanTypeBasicLanguage, Cycle: enums.BillingCycleQuarterly, Price: 239, ListPrice: 297, DurationDays: 90, DisplayName: "Basic Language Quarterly"},
	{PlanType: enums.PlanTypeBasicLanguage, Cycle: enums.BillingCycleYearly, Price: 799, ListPrice: 1188, DurationDays: 365, DisplayName: "Basic Language Yearly"},
	{PlanType: enums.PlanTypeExtendedLanguage, Cycle: enums.BillingCycleMonthly, Price: 129, ListPrice: 149, DurationDays: 30, DisplayName: "Extended Language Monthly"},
	{PlanType: enums.PlanTypeExtendedLanguage, Cycle: enums.BillingCycleQuarterly, Price: 349, ListPrice: 447, DurationDays: 90, DisplayName: "Extended Language Quarterly"},
	{PlanType: enums.PlanTypeExtendedLanguage, Cycle: enums.BillingCycleYearly, Price: 1199, ListPrice: 1788, DurationDays: 365, DisplayName: "Extended Language Yearly"},
}

var catalogIndex = func() map[planKey]Plan {
	idx := make(map[planKey]Plan, len(catalog))
	for _, p := range catalog {
		idx[planKey{planType: p.PlanType, cycle: p.Cycle}] = p
	}
	return idx
}()

// PriceOf looks up the authoritative price and duration for a plan/cycle pair.
func PriceOf(planType enums.PlanType, cycle enums.BillingCycle) (Plan, error) {
	p, ok := catalogIndex[planKey{
		planType: enums.PlanType(normalize(string(planType))),
		cycle:    enums.BillingCycle(normalize(string(cycle))),
	}]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s/%s", errs.ErrInvalidPlan, planType, cycle)
	}
	return p, nil
}

// Plans returns the catalog in display order.
func Plans() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// DiscountPercent is the rounded-down saving against the list price.
func (p Plan) DiscountPercent() int {
	if p.ListPrice <= 0 || p.Price >= p.ListPrice {
		return 0
	}
	return int((p.ListPrice - p.Price) * 100 / p.ListPrice)
}

// EntitlementExpiry adds durationDays as whole milliseconds in UTC.
func EntitlementExpiry(start time.Time, durationDays int) time.Time {
	return start.UTC().Add(time.Duration(int64(durationDays)*millisPerDay) * time.Millisecond)
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
