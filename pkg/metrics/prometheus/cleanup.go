package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metrics"
)

type cleanupMetrics struct {
	passes       *prometheus.CounterVec
	reclaimed    prometheus.Counter
	failed       prometheus.Counter
	passDuration prometheus.Histogram
}

// NewCleanupMetrics registers the cleanup collectors on reg.
func NewCleanupMetrics(reg prometheus.Registerer) metrics.CleanupMetrics {
	return &cleanupMetrics{
		passes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_passes_total",
				Help:      "Reclamation passes by status",
			},
			[]string{"status"},
		),
		reclaimed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_files_reclaimed_total",
				Help:      "Files whose object and metadata were removed",
			},
		),
		failed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_files_failed_total",
				Help:      "Files kept because removing their object failed",
			},
		),
		passDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cleanup_pass_duration_milliseconds",
				Help:      "Duration of one reclamation pass in milliseconds",
				Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 15000},
			},
		),
	}
}

func (m *cleanupMetrics) ObservePass(result metadata.ReclaimResult, duration time.Duration, err error) {
	m.passes.WithLabelValues(status(err)).Inc()
	m.reclaimed.Add(float64(result.Reclaimed))
	m.failed.Add(float64(result.Failed))
	m.passDuration.Observe(float64(duration.Milliseconds()))
}
