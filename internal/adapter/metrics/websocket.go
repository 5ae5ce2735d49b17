package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for websocket connections.
type WebSocketMetrics struct {
	ActiveConnections   prometheus.Gauge
	ConnectionsRejected *prometheus.CounterVec
	FramesSent          prometheus.Counter
	SendBufferDrops     prometheus.Counter
	PingFailures        prometheus.Counter
	ConnectionDuration  prometheus.Histogram
}

// NewWebSocketMetrics creates and registers websocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open websocket connections, classified or not.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "Websocket upgrades rejected, by reason.",
		}, []string{"reason"}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Total number of text frames written to clients.",
		}),
		SendBufferDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "send_buffer_drops_total",
			Help:      "Frames dropped because a client's send buffer was full or closed.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Keepalive pings that could not be written.",
		}),
		ConnectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of websocket connections in seconds.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 14400},
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.ConnectionsRejected, m.FramesSent, m.SendBufferDrops, m.PingFailures, m.ConnectionDuration)
	return m
}
