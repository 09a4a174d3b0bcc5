package domain

import "context"

// Rule is a single fraud detection strategy.
//
// Evaluate returns a trigger when the transaction is suspicious and nil when
// it is not. A returned error (or a panic) is a rule fault: the engine skips
// the rule for that evaluation and reports it in FraudResult.Faults.
type Rule interface {
	// Name is the constant display name used for trigger attribution.
	Name() string

	// Weight is the score contributed when the rule triggers.
	Weight() int

	Evaluate(ctx context.Context, tx Transaction) (*RuleTrigger, error)
}

// RuleTrigger records one rule that fired for a transaction.
type RuleTrigger struct {
	RuleName          string `json:"rule_name"`
	Reason            string `json:"reason"`
	ScoreContribution int    `json:"score_contribution"`
}

// RuleInfo is the read-only view of a configured rule.
type RuleInfo struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// RuleFault records a rule that failed during an evaluation and was skipped.
type RuleFault struct {
	RuleName string `json:"rule_name"`
	Error    string `json:"error"`
}

// Canonical rule names.
const (
	RuleImpossibleTravel = "Impossible Travel Rule"
	RuleVelocity         = "Velocity Rule"
	RuleCountryRisk      = "Country Risk Rule"
	RuleRoundAmount      = "Round Amount Rule"
	RuleHighAmount       = "High Amount Rule"
	RuleUnusualTime      = "Unusual Time Rule"
)
