package redisindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// ReplacePricingRules swaps a unit's rule set in one transaction. Like
// availability timelines, rules may land before the unit document.
func (s *Store) ReplacePricingRules(ctx context.Context, unitID string, rules []domain.PricingRule) error {
	propertyID := ""
	err := s.mutate(ctx, "replace_pricing", func(ctx context.Context) error {
		var city string
		var err error
		propertyID, city, err = s.unitOwner(ctx, unitID)
		if err != nil {
			return err
		}
		fields := make(map[string]string, len(rules))
		for _, r := range rules {
			if !r.Start.Before(r.End) {
				log.Warn().
					Str("unit_id", unitID).
					Time("start", r.Start).
					Time("end", r.End).
					Msg("dropping empty pricing rule range")
				continue
			}
			r.UnitID = unitID
			v, err := ruleValue(r)
			if err != nil {
				return fmt.Errorf("encode rule: %w", err)
			}
			fields[ruleField(r)] = v
		}
		_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keyPricing(unitID))
			if len(fields) > 0 {
				p.HSet(ctx, keyPricing(unitID), fields)
			}
			bumpEpochs(ctx, p, city)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("replace pricing rules %s: %w", unitID, err)
	}
	s.publish(ctx, "pricing.updated", propertyID, unitID)
	return nil
}

// PricingRules returns a unit's stored rules ordered by rule key.
func (s *Store) PricingRules(ctx context.Context, unitID string) ([]domain.PricingRule, error) {
	var rules []domain.PricingRule
	err := s.readOp(ctx, "pricing_rules", func(ctx context.Context) error {
		var err error
		rules, err = s.pricingRules(ctx, unitID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pricing rules %s: %w", unitID, err)
	}
	return rules, nil
}

// pricingRules loads and decodes the rule set in field order so overlap
// tie-breaks stay deterministic across calls.
func (s *Store) pricingRules(ctx context.Context, unitID string) ([]domain.PricingRule, error) {
	m, err := s.c.HGetAll(ctx, keyPricing(unitID)).Result()
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	rules := make([]domain.PricingRule, 0, len(m))
	for _, f := range fields {
		r, err := parseRule(m[f])
		if err != nil {
			log.Warn().Err(err).Str("unit_id", unitID).Msg("skipping corrupt pricing rule")
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// EffectiveNightly resolves the average nightly price of a unit over the
// half-open stay window, reported in the unit's currency.
func (s *Store) EffectiveNightly(ctx context.Context, unitID string, checkIn, checkOut time.Time) (float64, string, error) {
	var price float64
	var currency string
	err := s.readOp(ctx, "effective_nightly", func(ctx context.Context) error {
		m, err := s.c.HGetAll(ctx, keyUnit(unitID)).Result()
		if err != nil {
			return err
		}
		if len(m) == 0 {
			return domain.ErrNotFound
		}
		unit, err := parseUnit(m)
		if err != nil {
			return err
		}
		price, currency, err = s.effectiveNightly(ctx, unit, checkIn, checkOut)
		return err
	})
	if err != nil {
		return 0, "", err
	}
	return price, currency, nil
}

// effectiveNightly averages the resolved nightly price over the half-open
// stay window, reported in the unit's currency.
func (s *Store) effectiveNightly(ctx context.Context, unit domain.UnitDoc, checkIn, checkOut time.Time) (float64, string, error) {
	rules, err := s.pricingRules(ctx, unit.ID)
	if err != nil {
		return 0, "", err
	}
	nights := 0
	total := 0.0
	for night := checkIn; night.Before(checkOut); night = night.Add(24 * time.Hour) {
		nights++
		total += s.nightlyPrice(ctx, unit, rules, night)
	}
	if nights == 0 {
		return unit.BasePrice, unit.Currency, nil
	}
	return total / float64(nights), unit.Currency, nil
}

// nightlyPrice resolves one night: the covering rule with the highest
// precedence wins, later-starting rules break precedence ties, and the
// unit's base price fills uncovered nights.
func (s *Store) nightlyPrice(ctx context.Context, unit domain.UnitDoc, rules []domain.PricingRule, night time.Time) float64 {
	r, ok := selectRule(rules, night)
	if !ok {
		return unit.BasePrice
	}
	price := r.Amount
	if r.PercentageDelta != 0 {
		price = unit.BasePrice * (1 + r.PercentageDelta/100)
	}
	if r.MinPrice > 0 && price < r.MinPrice {
		price = r.MinPrice
	}
	if r.MaxPrice > 0 && price > r.MaxPrice {
		price = r.MaxPrice
	}
	if r.Currency != "" && unit.Currency != "" && !strings.EqualFold(r.Currency, unit.Currency) {
		if rate, ok := s.rates.Rate(ctx, r.Currency, unit.Currency); ok {
			price *= rate
		}
	}
	return price
}

func selectRule(rules []domain.PricingRule, night time.Time) (domain.PricingRule, bool) {
	best := -1
	for i, r := range rules {
		if !r.Covers(night) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		pi, pb := domain.RulePrecedence[r.Kind], domain.RulePrecedence[rules[best].Kind]
		if pi > pb || (pi == pb && r.Start.After(rules[best].Start)) {
			best = i
		}
	}
	if best < 0 {
		return domain.PricingRule{}, false
	}
	return rules[best], true
}
