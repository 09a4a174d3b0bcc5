package rules

import (
	"fmt"

	"github.com/opensource-finance/creditguard/internal/domain"
)

// DefaultRules builds the built-in rules in canonical order, most severe
// default weight first, followed by any configured custom rules.
func DefaultRules(velocity domain.VelocityStore, travel domain.TravelStore, s domain.RuleSettings) ([]domain.Rule, error) {
	rules := []domain.Rule{
		NewImpossibleTravelRule(travel, s.MaxTravelSpeedMph, s.ImpossibleTravelWeight),
		NewVelocityRule(velocity, s.VelocityMaxTransactions, s.VelocityWindow(), s.VelocityWeight),
		NewCountryRiskRule(s.CountryRiskWeight),
		NewRoundAmountRule(s.RoundAmountWeight),
		NewHighAmountRule(s.HighAmountThreshold, s.HighAmountWeight),
		NewUnusualTimeRule(s.UnusualTimeStartHour, s.UnusualTimeEndHour, s.UnusualTimeWeight),
	}

	for _, c := range s.Custom {
		rule, err := NewExpressionRule(c.Name, c.Expression, c.Reason, c.Weight)
		if err != nil {
			return nil, fmt.Errorf("custom rule %q: %w", c.Name, err)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}
