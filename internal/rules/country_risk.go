package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/creditguard/internal/domain"
)

// HighRiskCountries is the ISO 3166-1 alpha-2 set flagged by CountryRiskRule.
var HighRiskCountries = []string{"AF", "IR", "IQ", "SY", "KP", "SD", "SO", "CU", "YE", "LY"}

// CountryRiskRule flags transactions originating from a high-risk country.
type CountryRiskRule struct {
	base
	countries map[string]struct{}
}

// NewCountryRiskRule creates a country risk rule over HighRiskCountries.
func NewCountryRiskRule(weight int) *CountryRiskRule {
	countries := make(map[string]struct{}, len(HighRiskCountries))
	for _, c := range HighRiskCountries {
		countries[c] = struct{}{}
	}
	return &CountryRiskRule{
		base:      base{name: domain.RuleCountryRisk, weight: weight},
		countries: countries,
	}
}

// Evaluate triggers iff the country is in the high-risk set.
func (r *CountryRiskRule) Evaluate(_ context.Context, tx domain.Transaction) (*domain.RuleTrigger, error) {
	if _, ok := r.countries[tx.Country]; !ok {
		return nil, nil
	}
	return r.trigger(fmt.Sprintf("Transaction originated from high-risk country: %s", tx.Country)), nil
}
