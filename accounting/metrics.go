package accounting

import "github.com/prometheus/client_golang/prometheus"

// metrics instruments the public liquidity operations.
type metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hook_liquidity_operations_total",
			Help: "Liquidity operations handled by the accounting hook, by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hook_liquidity_operation_duration_seconds",
			Help:    "Duration of liquidity operations handled by the accounting hook.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.operations, m.duration)
	return m
}

func (m *metrics) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}
