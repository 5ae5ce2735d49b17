package metrics

import "github.com/prometheus/client_golang/prometheus"

// UploadMetrics holds Prometheus metrics for the file upload bridge.
type UploadMetrics struct {
	FilesStored     prometheus.Counter
	BytesStored     prometheus.Counter
	UploadsRejected *prometheus.CounterVec
}

// NewUploadMetrics creates and registers upload metrics on the given registry.
func NewUploadMetrics(reg prometheus.Registerer) *UploadMetrics {
	m := &UploadMetrics{
		FilesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "files_stored_total",
			Help:      "Files persisted by the upload bridge.",
		}),
		BytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "bytes_stored_total",
			Help:      "Bytes persisted by the upload bridge.",
		}),
		UploadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "rejected_total",
			Help:      "Uploads rejected, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.FilesStored, m.BytesStored, m.UploadsRejected)
	return m
}
