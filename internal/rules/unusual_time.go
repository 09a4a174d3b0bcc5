package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/creditguard/internal/domain"
)

// UnusualTimeRule flags transactions in the early-morning UTC window
// [startHour, endHour).
type UnusualTimeRule struct {
	base
	startHour int
	endHour   int
}

// NewUnusualTimeRule creates an unusual time rule.
func NewUnusualTimeRule(startHour, endHour, weight int) *UnusualTimeRule {
	return &UnusualTimeRule{
		base:      base{name: domain.RuleUnusualTime, weight: weight},
		startHour: startHour,
		endHour:   endHour,
	}
}

// Evaluate triggers iff startHour <= UTC hour < endHour.
func (r *UnusualTimeRule) Evaluate(_ context.Context, tx domain.Transaction) (*domain.RuleTrigger, error) {
	hour := tx.Timestamp.UTC().Hour()
	if hour < r.startHour || hour >= r.endHour {
		return nil, nil
	}

	return r.trigger(fmt.Sprintf(
		"Transaction at %d:00 (suspicious hours: %d:00-%d:00). Legitimate users rarely transact during early morning.",
		hour, r.startHour, r.endHour)), nil
}
