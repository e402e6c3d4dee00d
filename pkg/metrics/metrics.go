// Package metrics defines the observation hooks of the filesystem service.
//
// Every hook is optional: components accept a nil implementation and skip
// collection entirely. Prometheus-backed implementations live in
// pkg/metrics/prometheus.
//
// Example usage:
//
//	reg := prometheus.NewRegistry()
//	set := promMetrics.NewSet(reg)
//	orchestrator, _ := upload.New(upload.Config{..., Metrics: set.Upload})
//
//	// Without metrics
//	orchestrator, _ := upload.New(upload.Config{...})
package metrics

import (
	"time"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/metadata"
)

// UploadMetrics observes the two-phase upload protocol.
type UploadMetrics interface {
	// RecordPlanned counts files classified by startFileUpload.
	//
	// Parameters:
	//   - decision: "upload" or "duplicate"
	//   - files: Number of files that received this decision
	RecordPlanned(decision string, files int)

	// RecordFinished records the outcome of one uploadFile call.
	//
	// Parameters:
	//   - bytes: Declared size of the file
	//   - duration: Time spent streaming and finishing
	//   - err: nil on success
	RecordFinished(bytes int64, duration time.Duration, err error)
}

// DownloadMetrics observes downloads.
type DownloadMetrics interface {
	// RecordDownload counts a download served by redirect or by stream.
	RecordDownload(mode string, bytes int64)
}

// CleanupMetrics observes reclamation passes.
type CleanupMetrics interface {
	ObservePass(result metadata.ReclaimResult, duration time.Duration, err error)
}

// Download modes.
const (
	DownloadModeRedirect = "redirect"
	DownloadModeStream   = "stream"
)

// Set bundles every hook. Zero-value fields disable the matching collection.
type Set struct {
	Upload   UploadMetrics
	Download DownloadMetrics
	Cleanup  CleanupMetrics
	Backend  backend.Metrics
}

// RecordPlanned is a nil-safe UploadMetrics.RecordPlanned.
func RecordPlanned(m UploadMetrics, decision string, files int) {
	if m != nil && files > 0 {
		m.RecordPlanned(decision, files)
	}
}

// RecordFinished is a nil-safe UploadMetrics.RecordFinished.
func RecordFinished(m UploadMetrics, bytes int64, duration time.Duration, err error) {
	if m != nil {
		m.RecordFinished(bytes, duration, err)
	}
}

// RecordDownload is a nil-safe DownloadMetrics.RecordDownload.
func RecordDownload(m DownloadMetrics, mode string, bytes int64) {
	if m != nil {
		m.RecordDownload(mode, bytes)
	}
}

// ObservePass is a nil-safe CleanupMetrics.ObservePass.
func ObservePass(m CleanupMetrics, result metadata.ReclaimResult, duration time.Duration, err error) {
	if m != nil {
		m.ObservePass(result, duration, err)
	}
}
