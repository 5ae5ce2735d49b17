package metrics

import "github.com/prometheus/client_golang/prometheus"

// PresenceMetrics holds Prometheus metrics for the presence tracker actor.
type PresenceMetrics struct {
	Observers          prometheus.Gauge
	Producers          prometheus.Gauge
	ProtocolViolations *prometheus.CounterVec
	VitalAlerts        *prometheus.CounterVec
	CommandQueueDepth  prometheus.Gauge
	ActorPanics        prometheus.Counter
}

// NewPresenceMetrics creates and registers presence metrics on the given registry.
func NewPresenceMetrics(reg prometheus.Registerer) *PresenceMetrics {
	m := &PresenceMetrics{
		Observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "observers",
			Help:      "Connections currently joined as observers.",
		}),
		Producers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "producers",
			Help:      "Connections currently joined as producers.",
		}),
		ProtocolViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "protocol_violations_total",
			Help:      "Inbound messages rejected as protocol violations, by code.",
		}, []string{"code"}),
		VitalAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "vital_alerts_total",
			Help:      "Threshold alerts raised by relayed vitals, by alert.",
		}, []string{"alert"}),
		CommandQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "command_queue_depth",
			Help:      "Commands waiting for the tracker actor.",
		}),
		ActorPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "actor_panics_total",
			Help:      "Panics recovered inside the tracker actor.",
		}),
	}

	reg.MustRegister(m.Observers, m.Producers, m.ProtocolViolations, m.VitalAlerts, m.CommandQueueDepth, m.ActorPanics)
	return m
}
