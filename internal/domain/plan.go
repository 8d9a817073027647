/**
 * @description
 * Static plan catalog. Plans are pure configuration data: they are loaded once
 * at startup and never created, mutated, or deleted at runtime.
 */

package domain

import "math"

// Plan describes one investment product: a fixed price, a fixed daily yield
// percentage off the principal, and a fixed term in days.
type Plan struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	PriceCents        int64   `json:"price_cents"`
	DailyYieldPercent float64 `json:"daily_yield_percent"`
	DurationDays      int     `json:"duration_days"`
}

// DailyCreditCents computes the non-compounding daily credit for a position
// with the given principal. Yield is always computed off the principal, never
// off principal plus accrued yield, so the result is constant for the life of
// a subscription.
func (p Plan) DailyCreditCents(principalCents int64) int64 {
	return int64(math.Round(float64(principalCents) * p.DailyYieldPercent / 100))
}

// PlanCatalog is an immutable id -> plan lookup.
type PlanCatalog struct {
	plans map[string]Plan
}

// NewPlanCatalog builds a catalog from a fixed plan set.
func NewPlanCatalog(plans []Plan) *PlanCatalog {
	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}
	return &PlanCatalog{plans: byID}
}

// DefaultPlans is the platform's built-in product set.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "starter", Name: "Starter", PriceCents: 10_000, DailyYieldPercent: 1.0, DurationDays: 30},
		{ID: "growth", Name: "Growth", PriceCents: 50_000, DailyYieldPercent: 1.5, DurationDays: 60},
		{ID: "premium", Name: "Premium", PriceCents: 200_000, DailyYieldPercent: 2.0, DurationDays: 90},
	}
}

// ByID returns the plan with the given id.
func (c *PlanCatalog) ByID(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// All returns every plan in the catalog.
func (c *PlanCatalog) All() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	return out
}
