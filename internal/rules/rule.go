// Package rules provides the fraud rules and the engine that evaluates them.
package rules

import "github.com/opensource-finance/creditguard/internal/domain"

// base carries the identity every rule shares.
type base struct {
	name   string
	weight int
}

func (b base) Name() string { return b.name }

func (b base) Weight() int { return b.weight }

func (b base) trigger(reason string) *domain.RuleTrigger {
	return &domain.RuleTrigger{
		RuleName:          b.name,
		Reason:            reason,
		ScoreContribution: b.weight,
	}
}
