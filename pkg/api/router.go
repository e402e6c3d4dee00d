package api

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/api/auth"
	"github.com/marmos91/storagebox/pkg/api/handlers"
	apiMiddleware "github.com/marmos91/storagebox/pkg/api/middleware"
	"github.com/marmos91/storagebox/pkg/filesystem"
)

// requestTimeout bounds every route except byte transfers, whose duration
// scales with the payload.
const requestTimeout = 30 * time.Second

// RouterDeps are the collaborators the router dispatches to.
type RouterDeps struct {
	Service    *filesystem.Service
	Tokens     *auth.TokenService
	CookieName string
	Health     map[string]handlers.HealthChecker
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health, GET /health/ready
//   - GET|POST /filesystems
//   - /fs/{alias}/... directory, entry, permission, upload and download routes
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.Middleware)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	healthHandler := handlers.NewHealthHandler(deps.Health)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	fsHandler := handlers.NewFilesystemHandler(deps.Service)
	entryHandler := handlers.NewEntryHandler()
	transferHandler := handlers.NewTransferHandler()

	r.Group(func(r chi.Router) {
		r.Use(apiMiddleware.UserAuth(deps.Tokens, deps.CookieName))
		r.Use(apiMiddleware.RequireUser())

		r.With(middleware.Timeout(requestTimeout)).Route("/filesystems", func(r chi.Router) {
			r.Get("/", fsHandler.List)
			r.Post("/", fsHandler.Create)
		})

		r.Route("/fs/{alias}", func(r chi.Router) {
			r.Use(fsHandler.Load)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))

				r.Post("/directory", entryHandler.CreateDirectory)
				r.Get("/list", entryHandler.ListRoot)
				r.Get("/list/{directoryID}", entryHandler.ListDirectory)
				r.Get("/permissions", entryHandler.ListFilesystemPermissions)
				r.Post("/permissions", entryHandler.SetFilesystemPermission)
				r.Post("/upload", transferHandler.StartUpload)

				r.Route("/entries/{entryID}", func(r chi.Router) {
					r.Delete("/", entryHandler.Delete)
					r.Post("/move", entryHandler.Move)
					r.Post("/setPermissions", entryHandler.SetPermissions)
					r.Get("/permissions", entryHandler.ListPermissions)
					r.Post("/revokePermissionAdministratively", entryHandler.RevokeAdministratively)
				})
			})

			r.Post("/upload/finish", transferHandler.FinishUpload)
			r.Get("/download/{entryID}", transferHandler.Download)
		})
	})

	return r
}

// requestLogger logs requests using the internal logger and seeds the
// request-scoped log context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		lc := logger.NewLogContext(requestID, clientIP(r.RemoteAddr))
		ctx := r.Context()
		if traceID := telemetry.TraceID(ctx); traceID != "" {
			lc = lc.WithTrace(traceID, telemetry.SpanID(ctx))
		}
		ctx = logger.WithContext(ctx, lc)

		logger.DebugCtx(ctx, "API request started",
			"method", r.Method,
			"path", r.URL.Path,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.InfoCtx(ctx, "API request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			logger.Bytes(int64(ww.BytesWritten())),
			logger.DurationMs(lc.DurationMs()),
		)
	})
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
