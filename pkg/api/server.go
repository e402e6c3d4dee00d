// Package api exposes the filesystem service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/api/auth"
	"github.com/marmos91/storagebox/pkg/api/handlers"
	"github.com/marmos91/storagebox/pkg/filesystem"
)

// Server provides an HTTP server for the REST API.
//
// The server supports graceful shutdown: cancel the context passed to
// Start, or call Stop.
type Server struct {
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server in a stopped state.
//
// health maps component names to readiness probes (typically the metadata
// store and the backend repository).
func NewServer(config APIConfig, svc *filesystem.Service, health map[string]handlers.HealthChecker) (*Server, error) {
	config.ApplyDefaults()

	tokens, err := auth.NewTokenService(config.Auth.GetSecret())
	if err != nil {
		return nil, fmt.Errorf("set the user token secret via %s or auth.secret: %w", EnvUserTokenSecret, err)
	}

	router := NewRouter(RouterDeps{
		Service:    svc,
		Tokens:     tokens,
		CookieName: config.Auth.CookieName,
		Health:     health,
	})

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           router,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
			ReadTimeout:       config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
		},
		config: config,
	}, nil
}

// Start serves until ctx is cancelled or the listener fails. Cancellation
// triggers a graceful shutdown and Start returns its result.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// The cancelled ctx would abort the shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.Err(err))
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	return s.config.Port
}
