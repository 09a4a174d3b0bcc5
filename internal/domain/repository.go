// Package domain defines the core interfaces and types for CreditGuard.
package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// EvaluationRepository keeps recent evaluation results for the lifetime of
// the process. Implementations must not persist beyond it.
type EvaluationRepository interface {
	SaveEvaluation(ctx context.Context, result *FraudResult) error

	// GetEvaluation returns ErrNotFound for unknown or pruned ids.
	GetEvaluation(ctx context.Context, id string) (*FraudResult, error)

	// ListEvaluations returns the newest results first. An empty userID
	// lists every user.
	ListEvaluations(ctx context.Context, userID string, limit int) ([]*FraudResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// HistoryConfig holds configuration for the in-process evaluation history.
type HistoryConfig struct {
	Enabled bool `toml:"enabled"`

	// MaxRows caps the number of retained evaluations; oldest go first.
	MaxRows int `toml:"max_rows"`
}
