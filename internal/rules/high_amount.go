package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/shopspring/decimal"
)

// HighAmountRule flags transactions strictly above a threshold.
type HighAmountRule struct {
	base
	threshold decimal.Decimal
}

// NewHighAmountRule creates a high amount rule.
func NewHighAmountRule(threshold float64, weight int) *HighAmountRule {
	return &HighAmountRule{
		base:      base{name: domain.RuleHighAmount, weight: weight},
		threshold: decimal.NewFromFloat(threshold),
	}
}

// Evaluate triggers iff amount > threshold.
func (r *HighAmountRule) Evaluate(_ context.Context, tx domain.Transaction) (*domain.RuleTrigger, error) {
	amount := decimal.NewFromFloat(tx.Amount)
	if !amount.GreaterThan(r.threshold) {
		return nil, nil
	}

	return r.trigger(fmt.Sprintf("Transaction amount $%s exceeds threshold $%s",
		amount.StringFixed(2), r.threshold.StringFixed(2))), nil
}
