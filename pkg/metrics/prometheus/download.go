package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/storagebox/pkg/metrics"
)

type downloadMetrics struct {
	downloads *prometheus.CounterVec
	bytes     *prometheus.CounterVec
}

// NewDownloadMetrics registers the download collectors on reg.
func NewDownloadMetrics(reg prometheus.Registerer) metrics.DownloadMetrics {
	return &downloadMetrics{
		downloads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Downloads by mode (redirect or stream)",
			},
			[]string{"mode"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Declared bytes of downloaded files by mode",
			},
			[]string{"mode"},
		),
	}
}

func (m *downloadMetrics) RecordDownload(mode string, bytes int64) {
	m.downloads.WithLabelValues(mode).Inc()
	m.bytes.WithLabelValues(mode).Add(float64(bytes))
}
