package curve

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	swaps *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hook_curve_swaps_total",
			Help: "Swaps priced by the curve hook, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.swaps)
	return m
}

func (m *metrics) observe(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.swaps.WithLabelValues(result).Inc()
}
