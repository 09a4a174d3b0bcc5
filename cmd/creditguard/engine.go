package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/opensource-finance/creditguard/internal/metrics"
	"github.com/opensource-finance/creditguard/internal/rules"
	"github.com/opensource-finance/creditguard/internal/state"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// newEngine builds the state stores and the rule engine over them.
// m may be nil. The caller owns the returned stores.
func newEngine(ctx context.Context, cfg *domain.Config, m *metrics.Metrics) (*rules.Engine, *state.Stores, error) {
	stores, err := state.New(cfg.State)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize state stores: %w", err)
	}
	stores.StartJanitor(ctx, cfg.State.SweepInterval)

	ruleList, err := rules.DefaultRules(stores.Velocity, stores.Travel, cfg.Rules)
	if err != nil {
		stores.Close()
		return nil, nil, err
	}

	engineCfg := rules.EngineConfig{Tracer: newTracer(cfg.Tracing, "engine")}
	if m != nil {
		engineCfg.Observer = m
		if s, ok := stores.Velocity.(state.Sizer); ok {
			m.TrackUsers("velocity", s.Len)
		}
		if s, ok := stores.Travel.(state.Sizer); ok {
			m.TrackUsers("travel", s.Len)
		}
	}

	engine, err := rules.NewEngine(engineCfg, ruleList...)
	if err != nil {
		stores.Close()
		return nil, nil, err
	}

	slog.Info("rule engine initialized",
		"rules_count", len(engine.Rules()),
		"state_backend", cfg.State.Backend,
	)
	return engine, stores, nil
}

// newTracer returns a tracer from the global provider, or nil when tracing
// is disabled.
func newTracer(cfg domain.TracingConfig, component string) trace.Tracer {
	if !cfg.Enabled {
		return nil
	}
	return otel.Tracer(cfg.ServiceName + "-" + component)
}
