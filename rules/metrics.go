package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsNamespace prefixes every collector registered by NewMetricsLogger.
const MetricsNamespace = "domain"

// NewMetricsLogger returns a Logger that counts evaluations by type, rule and
// outcome and observes their latency by engine. Collectors are registered on
// reg, or on the default registerer when reg is nil.
func NewMetricsLogger(reg prometheus.Registerer) Logger {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	// Labels: type, rule, outcome (passed, broken, error)
	evaluations := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: "rules",
		Name:      "evaluations_total",
		Help:      "Total business rule evaluations",
	}, []string{"type", "rule", "outcome"})

	// Labels: engine
	latency := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: "rules",
		Name:      "evaluation_duration_seconds",
		Help:      "Business rule evaluation latency in seconds",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"engine"})

	return LoggerFunc(func(event EvaluationEvent) {
		evaluations.WithLabelValues(event.Type, event.Rule, event.Outcome()).Inc()
		latency.WithLabelValues(event.Engine).Observe(event.Duration.Seconds())
	})
}
