// Package metrics exposes CreditGuard's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the evaluation collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	triggers    *prometheus.CounterVec
	faults      *prometheus.CounterVec
	duration    prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditguard_evaluations_total",
			Help: "Transactions evaluated, by risk level.",
		}, []string{"risk_level"}),
		triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditguard_rule_triggers_total",
			Help: "Rule triggers, by rule name.",
		}, []string{"rule"}),
		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "creditguard_rule_faults_total",
			Help: "Rules skipped after an error or panic, by rule name.",
		}, []string{"rule"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "creditguard_evaluation_duration_seconds",
			Help:    "Time spent evaluating one transaction.",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
}

// ObserveEvaluation records one evaluation result.
func (m *Metrics) ObserveEvaluation(result *domain.FraudResult, elapsed time.Duration) {
	m.evaluations.WithLabelValues(string(result.RiskLevel)).Inc()
	for _, t := range result.TriggeredRules {
		m.triggers.WithLabelValues(t.RuleName).Inc()
	}
	for _, f := range result.Faults {
		m.faults.WithLabelValues(f.RuleName).Inc()
	}
	m.duration.Observe(elapsed.Seconds())
}

// TrackUsers exports size() as creditguard_tracked_users{store=name}.
func (m *Metrics) TrackUsers(name string, size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "creditguard_tracked_users",
		Help:        "Users currently held by an in-memory state store.",
		ConstLabels: prometheus.Labels{"store": name},
	}, func() float64 {
		return float64(size())
	}))
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
