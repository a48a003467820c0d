package domain

import "time"

// RuleKind identifies the pricing rule family. When several rules cover the
// same night the resolver applies RulePrecedence, not storage order.
type RuleKind string

const (
	RuleBase      RuleKind = "base"
	RuleWeekend   RuleKind = "weekend"
	RuleSeasonal  RuleKind = "seasonal"
	RuleHoliday   RuleKind = "holiday"
	RuleEarlyBird RuleKind = "early_bird"
)

// RulePrecedence maps each rule kind to its priority; higher wins. The table
// is explicit so overlap resolution never depends on enumeration order.
var RulePrecedence = map[RuleKind]int{
	RuleHoliday:   5,
	RuleSeasonal:  4,
	RuleEarlyBird: 3,
	RuleWeekend:   2,
	RuleBase:      1,
}

// PricingRule prices a unit for the half-open [Start, End) date range.
// Amount is absolute unless PercentageDelta is non-zero, in which case the
// delta applies to the unit's base price. MinPrice/MaxPrice, when positive,
// clamp the resolved nightly price.
type PricingRule struct {
	UnitID          string
	Kind            RuleKind
	Start           time.Time
	End             time.Time
	Amount          float64
	Currency        string
	Tier            string
	PercentageDelta float64
	MinPrice        float64
	MaxPrice        float64
}

// Covers reports whether the rule applies to the given night.
func (p PricingRule) Covers(night time.Time) bool {
	return !night.Before(p.Start) && night.Before(p.End)
}
