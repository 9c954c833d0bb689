package diag

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts events per kind and resource in a prometheus registry.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics registers the diagnostic counter with reg. A nil registerer
// uses a private registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadlens",
		Name:      "failed_attempts_total",
		Help:      "Failed resolution, bootstrap and query attempts.",
	}, []string{"kind", "resource"})
	if err := reg.Register(events); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return &Metrics{events: existing}, nil
			}
		}
		return nil, err
	}
	return &Metrics{events: events}, nil
}

// Record implements Sink.
func (m *Metrics) Record(e Event) {
	m.events.WithLabelValues(string(e.Kind), e.Resource).Inc()
}

// Collector exposes the underlying counter, mainly for tests.
func (m *Metrics) Collector() *prometheus.CounterVec {
	return m.events
}
