// Package scoring maps aggregated rule scores to risk levels.
package scoring

import "github.com/opensource-finance/creditguard/internal/domain"

// Score boundaries. Lower limits are inclusive.
const (
	MediumThreshold = 50
	HighThreshold   = 100
)

// Level returns the risk level for a total score.
//
//	score < 50        LOW
//	50 <= score < 100 MEDIUM
//	score >= 100      HIGH
func Level(score int) domain.RiskLevel {
	switch {
	case score >= HighThreshold:
		return domain.RiskHigh
	case score >= MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Total sums the score contributions of triggers.
func Total(triggers []domain.RuleTrigger) int {
	total := 0
	for _, t := range triggers {
		total += t.ScoreContribution
	}
	return total
}
