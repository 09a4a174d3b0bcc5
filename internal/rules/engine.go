package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/opensource-finance/creditguard/internal/scoring"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observer receives every completed evaluation.
type Observer interface {
	ObserveEvaluation(result *domain.FraudResult, elapsed time.Duration)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// MaxWorkers bounds the number of users evaluated concurrently by
	// EvaluateBatch. Defaults to 10.
	MaxWorkers int

	// Observer, when set, is called after every evaluation.
	Observer Observer

	// Tracer records one span per evaluation. Nil disables tracing.
	Tracer trace.Tracer
}

// Engine runs an ordered list of rules against each transaction and scores
// the result. One Engine is shared by all callers; stateful rules delegate
// per-user atomicity to their stores.
type Engine struct {
	rules      []domain.Rule
	names      map[string]struct{}
	maxWorkers int
	observer   Observer
	tracer     trace.Tracer
	now        func() time.Time
}

// NewEngine creates an engine over rules, evaluated in the given order.
// It fails on an empty list, a nil rule, a non-positive weight or a
// duplicate name.
func NewEngine(cfg EngineConfig, rules ...domain.Rule) (*Engine, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: engine requires at least one rule", domain.ErrInvalidConfig)
	}

	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}

	e := &Engine{
		rules:      make([]domain.Rule, 0, len(rules)),
		names:      make(map[string]struct{}, len(rules)),
		maxWorkers: cfg.MaxWorkers,
		observer:   cfg.Observer,
		tracer:     cfg.Tracer,
		now:        time.Now,
	}

	for _, r := range rules {
		if err := e.AddRule(r); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// AddRule appends a rule to the end of the active list.
// It must not be called concurrently with Evaluate or EvaluateBatch.
func (e *Engine) AddRule(r domain.Rule) error {
	if r == nil {
		return fmt.Errorf("%w: nil rule", domain.ErrInvalidConfig)
	}
	if r.Name() == "" {
		return fmt.Errorf("%w: rule has no name", domain.ErrInvalidConfig)
	}
	if r.Weight() <= 0 {
		return fmt.Errorf("%w: rule %q has non-positive weight %d", domain.ErrInvalidConfig, r.Name(), r.Weight())
	}
	if _, dup := e.names[r.Name()]; dup {
		return fmt.Errorf("%w: duplicate rule %q", domain.ErrInvalidConfig, r.Name())
	}

	e.names[r.Name()] = struct{}{}
	e.rules = append(e.rules, r)
	return nil
}

// Rules returns the configured rules in evaluation order.
func (e *Engine) Rules() []domain.RuleInfo {
	infos := make([]domain.RuleInfo, len(e.rules))
	for i, r := range e.rules {
		infos[i] = domain.RuleInfo{Name: r.Name(), Weight: r.Weight()}
	}
	return infos
}

// Evaluate runs every rule in order and returns the scored result.
// A rule that errors or panics is skipped and reported in Faults; the
// remaining rules still contribute. The only error is a done ctx.
func (e *Engine) Evaluate(ctx context.Context, tx domain.Transaction) (*domain.FraudResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.evaluate",
		trace.WithAttributes(attribute.String("user_id", tx.UserID)),
	)
	defer span.End()

	start := time.Now()

	triggered := make([]domain.RuleTrigger, 0, len(e.rules))
	var faults []domain.RuleFault

	for _, rule := range e.rules {
		trigger, err := safeEvaluate(ctx, rule, tx)
		if err != nil {
			faults = append(faults, domain.RuleFault{RuleName: rule.Name(), Error: err.Error()})
			span.RecordError(err, trace.WithAttributes(attribute.String("rule", rule.Name())))
			slog.Warn("rule fault, skipping rule",
				"rule", rule.Name(),
				"user_id", tx.UserID,
				"error", err,
			)
			continue
		}
		if trigger == nil {
			continue
		}

		trigger.RuleName = rule.Name()
		trigger.ScoreContribution = rule.Weight()
		triggered = append(triggered, *trigger)
	}

	total := scoring.Total(triggered)
	elapsed := time.Since(start)

	result := &domain.FraudResult{
		EvaluationID:   uuid.New().String(),
		UserID:         tx.UserID,
		RiskLevel:      scoring.Level(total),
		TotalScore:     total,
		TriggeredRules: triggered,
		Faults:         faults,
		Timestamp:      e.now().UTC(),
		DurationMs:     elapsed.Milliseconds(),
	}

	span.SetAttributes(
		attribute.String("risk_level", string(result.RiskLevel)),
		attribute.Int("total_score", total),
		attribute.Int("faults", len(faults)),
	)

	if e.observer != nil {
		e.observer.ObserveEvaluation(result, elapsed)
	}

	return result, nil
}

// safeEvaluate converts a rule panic into an error.
func safeEvaluate(ctx context.Context, rule domain.Rule, tx domain.Transaction) (trigger *domain.RuleTrigger, err error) {
	defer func() {
		if p := recover(); p != nil {
			trigger, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return rule.Evaluate(ctx, tx)
}
