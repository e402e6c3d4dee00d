package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/storagebox/pkg/metrics"
)

// namespace prefixes every metric name.
const namespace = "storagebox"

// NewRegistry creates a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewSet builds every metrics implementation on reg.
//
// Returns an empty Set if reg is nil, which disables collection.
func NewSet(reg prometheus.Registerer) metrics.Set {
	if reg == nil {
		return metrics.Set{}
	}
	return metrics.Set{
		Upload:   NewUploadMetrics(reg),
		Download: NewDownloadMetrics(reg),
		Cleanup:  NewCleanupMetrics(reg),
		Backend:  NewBackendMetrics(reg),
	}
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
