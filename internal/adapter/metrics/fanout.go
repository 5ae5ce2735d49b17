package metrics

import "github.com/prometheus/client_golang/prometheus"

// FanoutMetrics holds Prometheus metrics for observer fan-out.
type FanoutMetrics struct {
	Broadcasts        *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
}

// NewFanoutMetrics creates and registers fan-out metrics on the given registry.
func NewFanoutMetrics(reg prometheus.Registerer) *FanoutMetrics {
	m := &FanoutMetrics{
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "broadcasts_total",
			Help:      "Events broadcast to observers, by event.",
		}, []string{"event"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "deliveries_total",
			Help:      "Successful per-observer deliveries, by event.",
		}, []string{"event"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "delivery_failures_total",
			Help:      "Per-observer deliveries that failed or would have blocked, by event.",
		}, []string{"event"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "broadcast_duration_seconds",
			Help:      "Time spent enqueueing one event to every observer.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}

	reg.MustRegister(m.Broadcasts, m.Deliveries, m.DeliveryFailures, m.BroadcastDuration)
	return m
}
