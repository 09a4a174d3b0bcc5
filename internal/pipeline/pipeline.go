// Package pipeline runs evaluations through the engine and fans each result
// out to the evaluation history, the event bus and live listeners.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/opensource-finance/creditguard/internal/rules"
)

// Listener is notified of every completed evaluation. It must not block.
type Listener interface {
	OnEvaluation(result *domain.FraudResult)
}

// Processor is the entry point shared by the HTTP API, the bus worker and
// the CLI. History and bus are optional.
type Processor struct {
	engine  *rules.Engine
	history domain.EvaluationRepository
	bus     domain.EventBus

	mu        sync.RWMutex
	listeners []Listener
}

// NewProcessor creates a processor over engine. history and bus may be nil.
func NewProcessor(engine *rules.Engine, history domain.EvaluationRepository, bus domain.EventBus) *Processor {
	return &Processor{
		engine:  engine,
		history: history,
		bus:     bus,
	}
}

// AddListener registers l for every subsequent evaluation.
func (p *Processor) AddListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Engine returns the underlying rule engine.
func (p *Processor) Engine() *rules.Engine {
	return p.engine
}

// History returns the evaluation history, or nil when disabled.
func (p *Processor) History() domain.EvaluationRepository {
	return p.history
}

// Evaluate scores one transaction and records the result.
func (p *Processor) Evaluate(ctx context.Context, tx domain.Transaction) (*domain.FraudResult, error) {
	result, err := p.engine.Evaluate(ctx, tx)
	if err != nil {
		return nil, err
	}
	p.record(ctx, result)
	return result, nil
}

// EvaluateBatch scores txs with the engine's per-user ordering and records
// every result. Results are in input order.
func (p *Processor) EvaluateBatch(ctx context.Context, txs []domain.Transaction) ([]*domain.FraudResult, domain.BatchSummary, error) {
	results, err := p.engine.EvaluateBatch(ctx, txs)
	if err != nil {
		return nil, domain.BatchSummary{}, err
	}
	for _, r := range results {
		p.record(ctx, r)
	}
	return results, domain.Summarize(results), nil
}

// ShouldAlert reports whether result is published to the alert topic.
func ShouldAlert(result *domain.FraudResult) bool {
	return result.RiskLevel == domain.RiskHigh
}

// record fans a result out. Failures are logged; the caller already holds
// a complete result.
func (p *Processor) record(ctx context.Context, result *domain.FraudResult) {
	if p.history != nil {
		if err := p.history.SaveEvaluation(ctx, result); err != nil {
			slog.Error("failed to save evaluation",
				"evaluation_id", result.EvaluationID,
				"error", err,
			)
		}
	}

	if p.bus != nil {
		p.publish(ctx, result)
	}

	p.mu.RLock()
	listeners := p.listeners
	p.mu.RUnlock()
	for _, l := range listeners {
		l.OnEvaluation(result)
	}

	slog.Debug("transaction evaluated",
		"evaluation_id", result.EvaluationID,
		"user_id", result.UserID,
		"risk_level", result.RiskLevel,
		"total_score", result.TotalScore,
		"duration_ms", result.DurationMs,
	)
}

func (p *Processor) publish(ctx context.Context, result *domain.FraudResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to marshal evaluation", "evaluation_id", result.EvaluationID, "error", err)
		return
	}

	if err := p.bus.Publish(ctx, domain.TopicEvaluationCompleted, payload); err != nil {
		slog.Error("failed to publish evaluation",
			"evaluation_id", result.EvaluationID,
			"error", err,
		)
	}

	if ShouldAlert(result) {
		if err := p.bus.Publish(ctx, domain.TopicAlertHigh, payload); err != nil {
			slog.Error("failed to publish alert",
				"evaluation_id", result.EvaluationID,
				"error", err,
			)
		}
	}
}
