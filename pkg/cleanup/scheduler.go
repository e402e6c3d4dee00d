// Package cleanup reclaims files whose upload never finished, and finished
// files no entry references any more, once they expire.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metrics"
)

// Defaults for Config.
const (
	DefaultInterval  = 15 * time.Second
	DefaultBatchSize = 20
)

// Backends resolves a backend instance by ID.
type Backends interface {
	Get(ctx context.Context, id string) (backend.Backend, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	// Interval between passes.
	// Default: 15s
	Interval time.Duration

	// BatchSize is the most files one pass reclaims.
	// Default: 20
	BatchSize int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, BatchSize: DefaultBatchSize}
}

// Scheduler runs reclamation passes in the background.
type Scheduler struct {
	store    metadata.Reclaimer
	backends Backends
	metrics  metrics.CleanupMetrics
	cfg      Config
	now      func() time.Time

	// passMu serializes passes started by the loop and by RunNow.
	passMu sync.Mutex

	mu        sync.Mutex
	started   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	passes    int
	reclaimed int
	failed    int
}

// NewScheduler creates a scheduler. m may be nil.
func NewScheduler(store metadata.Reclaimer, backends Backends, cfg Config, m metrics.CleanupMetrics) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Scheduler{
		store:     store,
		backends:  backends,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// WithClock sets the clock passes compare expiries against. Call before Start.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start runs passes every Interval until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	logger.Info("Starting cleanup scheduler", "interval", s.cfg.Interval.String(), "batch_size", s.cfg.BatchSize)

	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Cleanup pass failed", logger.Err(err))
			}
		}
	}
}

// Stop ends the loop and waits for an in-flight pass, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	select {
	case <-s.stoppedCh:
		logger.Info("Cleanup scheduler stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Cleanup scheduler stop timed out")
		return ctx.Err()
	}
}

// RunNow runs one pass immediately.
func (s *Scheduler) RunNow(ctx context.Context) (result metadata.ReclaimResult, err error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCleanupPass)
	start := time.Now()
	defer func() {
		span.SetAttributes(telemetry.BatchSize(result.Selected), telemetry.Reclaimed(result.Reclaimed), telemetry.Failed(result.Failed))
		telemetry.EndSpan(span, err)
		metrics.ObservePass(s.metrics, result, time.Since(start), err)
	}()

	result, err = s.store.ReclaimExpiredPendingFiles(ctx, s.cfg.BatchSize, s.now(), s.remove)

	s.mu.Lock()
	s.passes++
	s.reclaimed += result.Reclaimed
	s.failed += result.Failed
	s.mu.Unlock()

	if err != nil {
		return result, err
	}
	if result.Selected > 0 {
		logger.Info("Cleanup pass finished",
			"selected", result.Selected, "reclaimed", result.Reclaimed, "failed", result.Failed,
			logger.DurationMs(logger.Duration(start)))
	}
	return result, nil
}

// remove deletes the object of a reclaimable file. The metadata row goes
// only if this succeeds.
func (s *Scheduler) remove(ctx context.Context, file metadata.File) (err error) {
	ctx, span := telemetry.StartBackendSpan(ctx, telemetry.SpanBackendDelete, file.BackendID, file.BackendURI,
		telemetry.FileID(int64(file.ID)))
	defer func() { telemetry.EndSpan(span, err) }()

	b, err := s.backends.Get(ctx, file.BackendID)
	if err != nil {
		return fmt.Errorf("resolve backend %s: %w", file.BackendID, err)
	}
	if err := b.DeleteFile(ctx, file.BackendURI); err != nil {
		logger.Warn("Failed to delete object, keeping file for the next pass",
			logger.FilesystemID(int64(file.FilesystemID)), logger.FileID(int64(file.ID)),
			logger.Backend(file.BackendID), logger.Err(err))
		return err
	}
	return nil
}

// Stats returns totals since the scheduler was created.
func (s *Scheduler) Stats() (passes, reclaimed, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes, s.reclaimed, s.failed
}
