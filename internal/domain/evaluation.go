package domain

import (
	"time"
)

// RiskLevel is the category derived from a total score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// FraudResult is the complete outcome of one transaction evaluation.
type FraudResult struct {
	EvaluationID   string        `json:"evaluation_id"`
	UserID         string        `json:"user_id"`
	RiskLevel      RiskLevel     `json:"risk_level"`
	TotalScore     int           `json:"total_score"`
	TriggeredRules []RuleTrigger `json:"triggered_rules"`
	Faults         []RuleFault   `json:"faults,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	DurationMs     int64         `json:"duration_ms"`
}

// Reasons returns the reason of every triggered rule, in rule order.
func (r *FraudResult) Reasons() []string {
	reasons := make([]string, 0, len(r.TriggeredRules))
	for _, t := range r.TriggeredRules {
		reasons = append(reasons, t.Reason)
	}
	return reasons
}

// BatchSummary counts results by risk level.
type BatchSummary struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Summarize builds a BatchSummary over results. Nil entries are ignored.
func Summarize(results []*FraudResult) BatchSummary {
	var s BatchSummary
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Total++
		switch r.RiskLevel {
		case RiskHigh:
			s.High++
		case RiskMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	return s
}
