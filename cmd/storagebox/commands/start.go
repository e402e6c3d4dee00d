package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/access"
	"github.com/marmos91/storagebox/pkg/api"
	"github.com/marmos91/storagebox/pkg/api/handlers"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/backend/repository"
	"github.com/marmos91/storagebox/pkg/cleanup"
	"github.com/marmos91/storagebox/pkg/config"
	"github.com/marmos91/storagebox/pkg/filesystem"
	"github.com/marmos91/storagebox/pkg/metrics"
	promMetrics "github.com/marmos91/storagebox/pkg/metrics/prometheus"
	"github.com/marmos91/storagebox/pkg/upload"
	"github.com/marmos91/storagebox/pkg/uploadtoken"
)

var (
	pidFile     string
	watchConfig bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the storagebox server",
	Long: `Start the storagebox HTTP API and the pending-file cleanup loop.

The server runs in the foreground; use a process supervisor to run it in the
background. Use --config to specify a custom configuration file, or it will
use the default location at $XDG_CONFIG_HOME/storagebox/config.yaml.

Examples:
  # Start with the default config
  storagebox start

  # Start with custom config file
  storagebox start --config /etc/storagebox/config.yaml

  # Start with environment variable overrides
  STORAGEBOX_LOGGING_LEVEL=DEBUG storagebox start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file while running")
	startCmd.Flags().BoolVar(&watchConfig, "watch", true, "Apply logging changes when the config file is edited")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "storagebox",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "storagebox",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", configSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	var set metrics.Set
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		reg := promMetrics.NewRegistry()
		set = promMetrics.NewSet(reg)
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           promMetrics.Handler(reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", logger.Err(err))
			}
		}()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	store, err := config.CreateMetadataStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("Metadata store ready", "type", cfg.Metadata.Type)

	cpStore, err := config.CreateControlPlaneStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize control plane store: %w", err)
	}
	defer func() { _ = cpStore.Close() }()

	repo := repository.New(cpStore, repository.Options{
		PresignTTL: cfg.Storage.PresignTTL,
		Metrics:    set.Backend,
	})
	defer func() { _ = repo.Close() }()

	if _, err := repo.Get(ctx, cfg.Storage.DefaultBackend); err != nil {
		return fmt.Errorf("default backend %q: %w", cfg.Storage.DefaultBackend, err)
	}

	key, err := uploadtoken.DeriveKey([]byte(cfg.UploadSecret()), uploadtoken.PurposeUploadTokens)
	if err != nil {
		return fmt.Errorf("failed to derive upload token key: %w", err)
	}
	signer, err := uploadtoken.NewSigner(key)
	if err != nil {
		return fmt.Errorf("failed to initialize upload tokens: %w", err)
	}

	uploads, err := upload.New(upload.Config{
		Store:    store,
		Access:   access.NewResolver(store),
		Selector: backend.StaticSelector(cfg.Storage.DefaultBackend),
		Backends: repo,
		Signer:   signer,
		Metrics:  set.Upload,
	})
	if err != nil {
		return err
	}

	svc, err := filesystem.New(filesystem.Config{
		Store:    store,
		Uploads:  uploads,
		Backends: repo,
		Metrics:  set.Download,
	})
	if err != nil {
		return err
	}

	var scheduler *cleanup.Scheduler
	if cfg.Cleanup.IsEnabled() {
		scheduler = cleanup.NewScheduler(store, repo, cfg.CleanupSchedule(), set.Cleanup)
		scheduler.Start(ctx)
		logger.Info("Cleanup enabled", "interval", cfg.Cleanup.Interval, "batch_size", cfg.Cleanup.BatchSize)
	}

	server, err := api.NewServer(cfg.Server, svc, map[string]handlers.HealthChecker{
		"metadata":     handlers.HealthCheckFunc(store.Healthcheck),
		"controlplane": handlers.HealthCheckFunc(cpStore.Healthcheck),
		"backends":     repo,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	if watchConfig {
		if path := configSource(GetConfigFile()); path != "defaults" {
			err := config.Watch(path, func(next *config.Config) {
				logger.SetLevel(next.Logging.Level)
				logger.SetFormat(next.Logging.Format)
			})
			if err != nil {
				logger.Warn("Config watch disabled", logger.Err(err))
			}
		}
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", cfg.Server.Port)

	var serveErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		serveErr = <-serverDone
	case serveErr = <-serverDone:
		cancel()
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer done()
	shutdown(shutdownCtx, scheduler, metricsServer)

	if serveErr != nil {
		logger.Error("Server error", logger.Err(serveErr))
		return serveErr
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// shutdown stops background work. The cleanup loop runs one last pass
// after it stops.
func shutdown(ctx context.Context, scheduler *cleanup.Scheduler, metricsServer *http.Server) {
	if scheduler != nil {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Cleanup loop did not stop in time", logger.Err(err))
		} else if _, err := scheduler.RunNow(ctx); err != nil {
			logger.Warn("Final cleanup pass failed", logger.Err(err))
		}
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
}
