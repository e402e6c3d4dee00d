package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metrics"
)

// uploadMetrics is the Prometheus implementation of metrics.UploadMetrics.
type uploadMetrics struct {
	planned        *prometheus.CounterVec
	finished       *prometheus.CounterVec
	bytes          prometheus.Counter
	finishDuration prometheus.Histogram
}

// NewUploadMetrics registers the upload collectors on reg.
func NewUploadMetrics(reg prometheus.Registerer) metrics.UploadMetrics {
	return &uploadMetrics{
		planned: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_files_planned_total",
				Help:      "Files classified by startFileUpload, by decision",
			},
			[]string{"decision"},
		),
		finished: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_files_finished_total",
				Help:      "uploadFile calls by outcome",
			},
			[]string{"status", "code"},
		),
		bytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_bytes_total",
				Help:      "Bytes of successfully finished uploads",
			},
		),
		finishDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_milliseconds",
				Help:      "Duration of uploadFile in milliseconds",
				Buckets: []float64{
					10,     // 10ms - tiny files
					100,    // 100ms
					1000,   // 1s
					10000,  // 10s
					60000,  // 1m
					300000, // 5m - large files on slow links
				},
			},
		),
	}
}

func (m *uploadMetrics) RecordPlanned(decision string, files int) {
	m.planned.WithLabelValues(decision).Add(float64(files))
}

func (m *uploadMetrics) RecordFinished(bytes int64, duration time.Duration, err error) {
	var code string
	switch c := metadata.CodeOf(err); {
	case err == nil:
	case c != 0:
		code = c.String()
	default:
		code = "backend"
	}
	m.finished.WithLabelValues(status(err), code).Inc()
	m.finishDuration.Observe(float64(duration.Milliseconds()))
	if err == nil {
		m.bytes.Add(float64(bytes))
	}
}
