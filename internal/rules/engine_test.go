package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/opensource-finance/creditguard/internal/state"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type stubRule struct {
	name    string
	weight  int
	fire    bool
	err     error
	panics  bool
	calls   int
	callsMu sync.Mutex
}

func (r *stubRule) Name() string { return r.name }
func (r *stubRule) Weight() int  { return r.weight }

func (r *stubRule) Evaluate(_ context.Context, _ domain.Transaction) (*domain.RuleTrigger, error) {
	r.callsMu.Lock()
	r.calls++
	r.callsMu.Unlock()

	if r.panics {
		panic("boom")
	}
	if r.err != nil {
		return nil, r.err
	}
	if !r.fire {
		return nil, nil
	}
	return &domain.RuleTrigger{Reason: r.name + " fired"}, nil
}

type recordingObserver struct {
	mu      sync.Mutex
	results []*domain.FraudResult
}

func (o *recordingObserver) ObserveEvaluation(result *domain.FraudResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

type spanRecorder struct {
	noop.Tracer
	mu    sync.Mutex
	names []string
}

func (r *spanRecorder) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return r.Tracer.Start(ctx, name, opts...)
}

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	rules, err := DefaultRules(
		state.NewMemoryVelocityStore(8, 1000, 0),
		state.NewMemoryTravelStore(8, 1000, 0),
		domain.DefaultRuleSettings(),
	)
	if err != nil {
		t.Fatalf("DefaultRules failed: %v", err)
	}
	engine, err := NewEngine(EngineConfig{MaxWorkers: 4}, rules...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name  string
		rules []domain.Rule
	}{
		{"empty", nil},
		{"nil rule", []domain.Rule{nil}},
		{"zero weight", []domain.Rule{&stubRule{name: "a", weight: 0}}},
		{"negative weight", []domain.Rule{&stubRule{name: "a", weight: -5}}},
		{"duplicate name", []domain.Rule{&stubRule{name: "a", weight: 1}, &stubRule{name: "a", weight: 2}}},
		{"empty name", []domain.Rule{&stubRule{name: "", weight: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(EngineConfig{}, tt.rules...)
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDefaultRuleOrder(t *testing.T) {
	engine := newDefaultEngine(t)

	want := []domain.RuleInfo{
		{Name: domain.RuleImpossibleTravel, Weight: 70},
		{Name: domain.RuleVelocity, Weight: 50},
		{Name: domain.RuleCountryRisk, Weight: 40},
		{Name: domain.RuleRoundAmount, Weight: 35},
		{Name: domain.RuleHighAmount, Weight: 30},
		{Name: domain.RuleUnusualTime, Weight: 25},
	}

	got := engine.Rules()
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rule %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestEvaluateEndToEnd(t *testing.T) {
	engine := newDefaultEngine(t)

	in := tx("user-001", 10.00, "AF", time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC))
	result, err := engine.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.TotalScore != 100 {
		t.Errorf("expected score 100, got %d", result.TotalScore)
	}
	if result.RiskLevel != domain.RiskHigh {
		t.Errorf("expected HIGH, got %s", result.RiskLevel)
	}

	wantOrder := []string{domain.RuleCountryRisk, domain.RuleRoundAmount, domain.RuleUnusualTime}
	if len(result.TriggeredRules) != len(wantOrder) {
		t.Fatalf("expected %d triggers, got %+v", len(wantOrder), result.TriggeredRules)
	}
	for i, name := range wantOrder {
		if result.TriggeredRules[i].RuleName != name {
			t.Errorf("trigger %d: expected %s, got %s", i, name, result.TriggeredRules[i].RuleName)
		}
	}

	if result.UserID != "user-001" || result.EvaluationID == "" || result.Timestamp.IsZero() {
		t.Errorf("incomplete result: %+v", result)
	}
	if len(result.Faults) != 0 {
		t.Errorf("unexpected faults: %+v", result.Faults)
	}
}

func TestEvaluateLowRisk(t *testing.T) {
	engine := newDefaultEngine(t)

	result, _ := engine.Evaluate(context.Background(), tx("user-002", 47.23, "US", t0))
	if result.RiskLevel != domain.RiskLow || result.TotalScore != 0 || len(result.TriggeredRules) != 0 {
		t.Errorf("expected clean LOW result, got %+v", result)
	}
	if result.TriggeredRules == nil {
		t.Error("triggered rules should be an empty list, not nil")
	}
}

func TestEvaluateScoreIsSumOfWeights(t *testing.T) {
	engine, err := NewEngine(EngineConfig{},
		&stubRule{name: "a", weight: 20, fire: true},
		&stubRule{name: "b", weight: 15},
		&stubRule{name: "c", weight: 30, fire: true},
	)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	result, _ := engine.Evaluate(context.Background(), tx("user-001", 1, "US", t0))
	if result.TotalScore != 50 || result.RiskLevel != domain.RiskMedium {
		t.Errorf("expected 50 MEDIUM, got %d %s", result.TotalScore, result.RiskLevel)
	}
	if result.TriggeredRules[0].RuleName != "a" || result.TriggeredRules[1].RuleName != "c" {
		t.Errorf("triggers out of rule order: %+v", result.TriggeredRules)
	}
	for _, trig := range result.TriggeredRules {
		if trig.ScoreContribution == 0 {
			t.Errorf("trigger %s missing contribution", trig.RuleName)
		}
	}
}

func TestEvaluateFaultIsolation(t *testing.T) {
	after := &stubRule{name: "after", weight: 60, fire: true}
	engine, _ := NewEngine(EngineConfig{},
		&stubRule{name: "panics", weight: 10, panics: true},
		&stubRule{name: "errors", weight: 10, err: fmt.Errorf("store unavailable")},
		after,
	)

	result, err := engine.Evaluate(context.Background(), tx("user-001", 1, "US", t0))
	if err != nil {
		t.Fatalf("a faulty rule must not fail the evaluation: %v", err)
	}

	if after.calls != 1 {
		t.Errorf("rules after a fault must still run, got %d calls", after.calls)
	}
	if result.TotalScore != 60 || result.RiskLevel != domain.RiskMedium {
		t.Errorf("expected 60 MEDIUM from surviving rule, got %d %s", result.TotalScore, result.RiskLevel)
	}
	if len(result.Faults) != 2 {
		t.Fatalf("expected 2 faults, got %+v", result.Faults)
	}
	if result.Faults[0].RuleName != "panics" || result.Faults[1].RuleName != "errors" {
		t.Errorf("unexpected faults: %+v", result.Faults)
	}
	if result.Faults[1].Error != "store unavailable" {
		t.Errorf("unexpected fault error: %s", result.Faults[1].Error)
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	engine := newDefaultEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Evaluate(ctx, tx("user-001", 1, "US", t0))
	if err == nil || result != nil {
		t.Errorf("expected (nil, err) for cancelled context, got %+v, %v", result, err)
	}
}

func TestAddRule(t *testing.T) {
	engine := newDefaultEngine(t)

	custom, err := NewExpressionRule("Crypto Merchant Rule", `merchant == "Crypto Exchange"`, "Crypto exchange purchase", 15)
	if err != nil {
		t.Fatalf("NewExpressionRule failed: %v", err)
	}
	if err := engine.AddRule(custom); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	rules := engine.Rules()
	if rules[len(rules)-1].Name != "Crypto Merchant Rule" {
		t.Errorf("expected custom rule appended last, got %+v", rules)
	}

	if err := engine.AddRule(NewHighAmountRule(1, 1)); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected duplicate rule error, got %v", err)
	}

	in := tx("user-001", 47.23, "US", t0)
	in.Merchant = "Crypto Exchange"
	result, _ := engine.Evaluate(context.Background(), in)
	if result.TotalScore != 15 {
		t.Errorf("expected custom rule score 15, got %d", result.TotalScore)
	}
}

func TestDefaultRulesCustom(t *testing.T) {
	settings := domain.DefaultRuleSettings()
	settings.Custom = []domain.CustomRuleConfig{
		{Name: "Weekend", Expression: "not valid (", Weight: 5},
	}

	_, err := DefaultRules(state.NewMemoryVelocityStore(1, 1, 0), state.NewMemoryTravelStore(1, 1, 0), settings)
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for bad custom rule, got %v", err)
	}
}

func TestEvaluateObserver(t *testing.T) {
	obs := &recordingObserver{}
	engine, _ := NewEngine(EngineConfig{Observer: obs}, NewHighAmountRule(1000, 30))

	engine.Evaluate(context.Background(), tx("user-001", 5000, "US", t0))
	if len(obs.results) != 1 || obs.results[0].TotalScore != 30 {
		t.Errorf("observer not called with result: %+v", obs.results)
	}
}

func TestConcurrentEvaluateSameUser(t *testing.T) {
	velocity := state.NewMemoryVelocityStore(8, 1000, 0)
	engine, _ := NewEngine(EngineConfig{}, NewVelocityRule(velocity, 1000, time.Hour, 50))

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Evaluate(context.Background(), tx("hot-user", 5, "US", t0))
		}()
	}
	wg.Wait()

	count, _ := velocity.Record(context.Background(), "hot-user", t0, time.Hour)
	if count != n+1 {
		t.Errorf("expected %d recorded instants, got %d", n+1, count)
	}
}

func TestEvaluateBatch(t *testing.T) {
	t.Run("InputOrderPreserved", func(t *testing.T) {
		engine := newDefaultEngine(t)

		txs := make([]domain.Transaction, 0, 20)
		for i := 0; i < 20; i++ {
			txs = append(txs, tx(fmt.Sprintf("user-%d", i%5), 47.23, "US", t0.Add(time.Duration(i)*time.Second)))
		}

		results, err := engine.EvaluateBatch(context.Background(), txs)
		if err != nil {
			t.Fatalf("EvaluateBatch failed: %v", err)
		}
		if len(results) != len(txs) {
			t.Fatalf("expected %d results, got %d", len(txs), len(results))
		}
		for i, r := range results {
			if r == nil || r.UserID != txs[i].UserID {
				t.Errorf("result %d out of order: %+v", i, r)
			}
		}
	})

	t.Run("PerUserChronological", func(t *testing.T) {
		engine := newDefaultEngine(t)

		// GB arrives first in the input but happened after US.
		txs := []domain.Transaction{
			tx("traveller", 47.23, "GB", t0.Add(20*time.Minute)),
			tx("traveller", 47.23, "US", t0),
		}

		results, err := engine.EvaluateBatch(context.Background(), txs)
		if err != nil {
			t.Fatalf("EvaluateBatch failed: %v", err)
		}
		if results[1].TotalScore != 0 {
			t.Errorf("US transaction was first chronologically and must not trigger, got %+v", results[1].TriggeredRules)
		}
		if results[0].TotalScore != 70 {
			t.Errorf("GB transaction should trigger impossible travel, got %+v", results[0].TriggeredRules)
		}
	})

	t.Run("VelocityAcrossBatch", func(t *testing.T) {
		engine := newDefaultEngine(t)

		txs := make([]domain.Transaction, 4)
		for i := range txs {
			txs[i] = tx("rapid", 47.23, "US", t0.Add(time.Duration(i)*time.Minute))
		}

		results, _ := engine.EvaluateBatch(context.Background(), txs)
		summary := domain.Summarize(results)
		if summary.Total != 4 || summary.Medium != 1 || summary.Low != 3 {
			t.Errorf("unexpected summary: %+v", summary)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		engine := newDefaultEngine(t)
		results, err := engine.EvaluateBatch(context.Background(), nil)
		if err != nil || len(results) != 0 {
			t.Errorf("expected empty results, got %v, %v", results, err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		engine := newDefaultEngine(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := engine.EvaluateBatch(ctx, []domain.Transaction{tx("u", 1, "US", t0)}); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func TestEvaluateTracing(t *testing.T) {
	tx := domain.Transaction{UserID: "user-001", Amount: 10, Currency: "USD", Country: "US", Timestamp: time.Now()}

	t.Run("Enabled", func(t *testing.T) {
		rec := &spanRecorder{}
		engine, _ := NewEngine(EngineConfig{Tracer: rec}, NewHighAmountRule(1000, 30))

		if _, err := engine.Evaluate(context.Background(), tx); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if len(rec.names) != 1 || rec.names[0] != "engine.evaluate" {
			t.Errorf("expected one engine.evaluate span, got %v", rec.names)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		engine, _ := NewEngine(EngineConfig{}, NewHighAmountRule(1000, 30))
		if _, err := engine.Evaluate(context.Background(), tx); err != nil {
			t.Fatalf("Evaluate without tracer failed: %v", err)
		}
	})
}
