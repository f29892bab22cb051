package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	specs prometheus.Gauge
	loads *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &metrics{
		specs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "milspecs",
			Subsystem: "registry",
			Name:      "specs",
			Help:      "Number of registered spec plugins.",
		}),
		loads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "milspecs",
			Subsystem: "registry",
			Name:      "member_loads_total",
			Help:      "Component and composable load attempts by outcome.",
		}, []string{"kind", "result"}),
	}
}

func (m *metrics) setSpecs(n int) {
	if m == nil {
		return
	}
	m.specs.Set(float64(n))
}

func (m *metrics) observeLoad(kind, result string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(kind, result).Inc()
}
