package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/shopspring/decimal"
)

// Card testers probe stolen cards with these exact amounts.
var suspiciousAmounts = []decimal.Decimal{
	decimal.NewFromInt(1),
	decimal.NewFromInt(5),
	decimal.NewFromInt(10),
	decimal.NewFromInt(20),
	decimal.NewFromInt(50),
	decimal.NewFromInt(100),
}

var wholeDollarCeiling = decimal.NewFromInt(25)

// RoundAmountRule flags card-testing amounts: a fixed set of round values,
// or any whole-dollar amount up to $25.
type RoundAmountRule struct {
	base
}

// NewRoundAmountRule creates a round amount rule.
func NewRoundAmountRule(weight int) *RoundAmountRule {
	return &RoundAmountRule{base: base{name: domain.RuleRoundAmount, weight: weight}}
}

// Evaluate checks the explicit set first; the whole-dollar check only runs
// when the amount is not in the set.
func (r *RoundAmountRule) Evaluate(_ context.Context, tx domain.Transaction) (*domain.RuleTrigger, error) {
	amount := decimal.NewFromFloat(tx.Amount)

	for _, s := range suspiciousAmounts {
		if amount.Equal(s) {
			return r.trigger(fmt.Sprintf(
				"Suspicious round amount: $%s. Card testers often use small, round amounts to verify stolen cards before larger fraud.",
				amount.StringFixed(2))), nil
		}
	}

	if amount.IsInteger() && amount.LessThanOrEqual(wholeDollarCeiling) {
		return r.trigger(fmt.Sprintf(
			"Exact dollar amount: $%s. Legitimate purchases typically include cents (e.g., $23.47 not $23.00).",
			amount.StringFixed(2))), nil
	}

	return nil, nil
}
