package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/storagebox/pkg/backend"
)

// backendMetrics is the Prometheus implementation of backend.Metrics.
type backendMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewBackendMetrics registers the storage backend collectors on reg.
func NewBackendMetrics(reg prometheus.Registerer) backend.Metrics {
	return &backendMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_operations_total",
				Help:      "Total number of backend operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_operation_duration_milliseconds",
				Help:      "Duration of backend operations in milliseconds",
				Buckets: []float64{
					1,     // 1ms - presign, local disk
					10,    // 10ms
					50,    // 50ms - small objects
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s - medium objects
					5000,  // 5s - large objects
					30000, // 30s - very large operations
				},
			},
			[]string{"backend", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_bytes_transferred_total",
				Help:      "Total bytes moved to (in) or from (out) backends",
			},
			[]string{"backend", "direction"},
		),
	}
}

func (m *backendMetrics) ObserveOperation(backendID, operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(backendID, operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(backendID, operation).Observe(float64(duration.Milliseconds()))
}

func (m *backendMetrics) RecordBytes(backendID, direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(backendID, direction).Add(float64(bytes))
}
