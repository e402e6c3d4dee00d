// Package filesystem is the operation surface of the service: listing and
// creating filesystems, and every operation on one filesystem's tree.
//
// Each operation takes the validated caller, checks permissions through
// the access resolver, and then delegates to the metadata store, the upload
// orchestrator or a storage backend. Operations are traced with
// OpenTelemetry; spans are no-ops when tracing is disabled.
package filesystem

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/access"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metrics"
	"github.com/marmos91/storagebox/pkg/upload"
)

// Config wires a Service.
type Config struct {
	Store    metadata.Store
	Uploads  *upload.Orchestrator
	Backends upload.Backends

	// Metrics is optional.
	Metrics metrics.DownloadMetrics
}

// Service serves every filesystem of one metadata store.
type Service struct {
	store    metadata.Store
	access   *access.Resolver
	uploads  *upload.Orchestrator
	backends upload.Backends
	metrics  metrics.DownloadMetrics
	log      *slog.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("filesystem: store is required")
	case cfg.Uploads == nil:
		return nil, errors.New("filesystem: upload orchestrator is required")
	case cfg.Backends == nil:
		return nil, errors.New("filesystem: backend repository is required")
	}
	return &Service{
		store:    cfg.Store,
		access:   access.NewResolver(cfg.Store),
		uploads:  cfg.Uploads,
		backends: cfg.Backends,
		metrics:  cfg.Metrics,
		log:      logger.With(logger.KeyComponent, "filesystem_service"),
	}, nil
}

// Access returns the resolver the service checks permissions with.
func (s *Service) Access() *access.Resolver {
	return s.access
}

// ListFilesystems returns the filesystems user can read.
func (s *Service) ListFilesystems(ctx context.Context, user *identity.UserContext) (_ []metadata.Filesystem, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFilesystemsList)
	span.SetAttributes(caller(user)...)
	defer func() { telemetry.EndSpan(span, err) }()

	return s.store.ListFilesystems(ctx, user.EffectiveAttributes())
}

// CreateFilesystem creates a filesystem and grants its creator every
// permission on it. Requires the create-fs capability.
func (s *Service) CreateFilesystem(ctx context.Context, user *identity.UserContext, name, alias string) (_ *metadata.Filesystem, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFilesystemsCreate)
	span.SetAttributes(append(caller(user), telemetry.Alias(alias))...)
	defer func() { telemetry.EndSpan(span, err) }()

	if !user.CanCreateFilesystems {
		return nil, metadata.NewNoCapabilityError(identity.CapabilityCreateFilesystems)
	}
	if name == "" {
		return nil, metadata.NewInvalidArgumentError("filesystem name must not be empty")
	}
	if err := metadata.ValidateAlias(alias); err != nil {
		return nil, err
	}

	fs, err := s.store.CreateFilesystem(ctx, []metadata.FilesystemGrant{{
		Criterion:   user.DefaultCriterion(),
		Permissions: metadata.AllFilesystemPermissions(),
	}}, name, alias)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Filesystem created",
		logger.FilesystemID(int64(fs.ID)), "alias", fs.Alias,
		"issuer", user.Identification.Issuer, "subject", user.Identification.Subject)
	return fs, nil
}

// Open returns the filesystem with the given alias. Opening checks no
// permission; every operation on the handle does.
func (s *Service) Open(ctx context.Context, alias string) (*Filesystem, error) {
	fs, err := s.store.GetFilesystemByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	return &Filesystem{svc: s, fs: *fs}, nil
}

func caller(user *identity.UserContext) []attribute.KeyValue {
	return telemetry.Caller(user.Identification.Issuer, user.Identification.Subject)
}
