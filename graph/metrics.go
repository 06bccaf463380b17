package graph

import "github.com/prometheus/client_golang/prometheus"

// Metrics records turn and model-call outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	turns        *prometheus.CounterVec
	modelCalls   *prometheus.CounterVec
	turnDuration prometheus.Histogram
}

// NewMetrics registers the graph collectors on registry. It returns nil when
// registry is nil.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_turns_total",
				Help: "Total number of turns by outcome",
			},
			[]string{"outcome"},
		),
		modelCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_model_calls_total",
				Help: "Total number of model invocations by node and outcome",
			},
			[]string{"node", "outcome"},
		),
		turnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "graph_turn_duration_seconds",
				Help:    "Wall-clock duration of completed and failed turns",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
	}

	registry.MustRegister(m.turns, m.modelCalls, m.turnDuration)
	return m
}

func (m *Metrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(seconds)
}

func (m *Metrics) IncrementModelCall(node Node, outcome string) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(string(node), outcome).Inc()
}
