package sandbox

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts tool invocations and policy denials. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	invocations *prometheus.CounterVec
	denials     *prometheus.CounterVec
}

// NewMetrics registers the sandbox collectors on registry. It returns nil
// when registry is nil.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_tool_invocations_total",
				Help: "Total number of tool invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		denials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_policy_denials_total",
				Help: "Total number of invocations rejected by the sandbox policy",
			},
			[]string{"tool", "kind"},
		),
	}

	registry.MustRegister(m.invocations, m.denials)
	return m
}

func (m *Metrics) IncrementInvocation(tool, outcome string) {
	if m != nil && m.invocations != nil {
		m.invocations.WithLabelValues(tool, outcome).Inc()
	}
}

func (m *Metrics) IncrementDenial(tool string, kind ErrorKind) {
	if m != nil && m.denials != nil {
		m.denials.WithLabelValues(tool, string(kind)).Inc()
	}
}
