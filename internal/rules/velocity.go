package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
)

// VelocityRule flags users exceeding maxTransactions inside a sliding window.
type VelocityRule struct {
	base
	store           domain.VelocityStore
	maxTransactions int
	window          time.Duration
}

// NewVelocityRule creates a velocity rule backed by store.
func NewVelocityRule(store domain.VelocityStore, maxTransactions int, window time.Duration, weight int) *VelocityRule {
	return &VelocityRule{
		base:            base{name: domain.RuleVelocity, weight: weight},
		store:           store,
		maxTransactions: maxTransactions,
		window:          window,
	}
}

// Evaluate records the transaction instant and triggers iff the user's
// count inside the window, including this one, exceeds the limit.
func (r *VelocityRule) Evaluate(ctx context.Context, tx domain.Transaction) (*domain.RuleTrigger, error) {
	count, err := r.store.Record(ctx, tx.UserID, tx.Timestamp, r.window)
	if err != nil {
		return nil, fmt.Errorf("record velocity: %w", err)
	}

	if count <= r.maxTransactions {
		return nil, nil
	}

	return r.trigger(fmt.Sprintf("User has %d transactions in last %d minutes (max: %d)",
		count, int(r.window/time.Minute), r.maxTransactions)), nil
}
