package usage

import (
	"fmt"
	"strings"
)

// Plan is a subscription tier
type Plan string

const (
	PlanFree    Plan = "Free"
	PlanStarter Plan = "Starter"
	PlanGrowth  Plan = "Growth"
)

// PlanLimits are the per-period ceilings of a plan. A nil limit means unlimited.
type PlanLimits struct {
	Price     *int64 `json:"price"`
	CompareAt *int64 `json:"compare_at"`
}

// Unlimited reports whether the plan has no ceilings
func (l PlanLimits) Unlimited() bool {
	return l.Price == nil
}

// Tier describes a plan for display and limit lookup
type Tier struct {
	Plan           Plan   `json:"name"`
	PriceLimit     *int64 `json:"price_limit"`
	CompareAtLimit *int64 `json:"compare_at_limit"`
	Description    string `json:"description"`
}

// Limits returns the tier's limits
func (t Tier) Limits() PlanLimits {
	return PlanLimits{Price: t.PriceLimit, CompareAt: t.CompareAtLimit}
}

func limit(n int64) *int64 {
	return &n
}

// Tiers is the plan catalogue, ordered from smallest to largest
var Tiers = []Tier{
	{
		Plan:           PlanFree,
		PriceLimit:     limit(30),
		CompareAtLimit: limit(30),
		Description:    "30 variant price updates & 30 compare-at price updates",
	},
	{
		Plan:           PlanStarter,
		PriceLimit:     limit(300),
		CompareAtLimit: limit(300),
		Description:    "300 variant price updates & 300 compare-at price updates",
	},
	{
		Plan:        PlanGrowth,
		Description: "Unlimited price updates",
	},
}

// ParsePlan classifies a platform plan name. Matching is a case-insensitive substring
// test with "starter" checked before "growth"; unrecognized and empty names are Free.
func ParsePlan(name string) Plan {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "starter"):
		return PlanStarter
	case strings.Contains(lower, "growth"):
		return PlanGrowth
	default:
		return PlanFree
	}
}

// TierFor returns the catalogue entry of a plan
func TierFor(plan Plan) Tier {
	for _, t := range Tiers {
		if t.Plan == plan {
			return t
		}
	}
	return Tiers[0]
}

// LimitsForPlan returns the limits for a platform plan name
func LimitsForPlan(name string) PlanLimits {
	return TierFor(ParsePlan(name)).Limits()
}

// ValidateTiers checks the catalogue invariants: every plan appears once and its two
// limits are either both set or both unlimited.
func ValidateTiers(tiers []Tier) error {
	seen := make(map[Plan]bool, len(tiers))
	for _, t := range tiers {
		if seen[t.Plan] {
			return fmt.Errorf("duplicate tier %q", t.Plan)
		}
		seen[t.Plan] = true

		if (t.PriceLimit == nil) != (t.CompareAtLimit == nil) {
			return fmt.Errorf("tier %q must set both limits or neither", t.Plan)
		}
		if t.PriceLimit != nil && (*t.PriceLimit < 0 || *t.CompareAtLimit < 0) {
			return fmt.Errorf("tier %q has a negative limit", t.Plan)
		}
	}
	for _, p := range []Plan{PlanFree, PlanStarter, PlanGrowth} {
		if !seen[p] {
			return fmt.Errorf("missing tier %q", p)
		}
	}
	return nil
}
