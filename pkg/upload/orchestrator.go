// Package upload implements the two-phase upload protocol.
//
// StartFileUpload plans a batch: it classifies every requested file as a new
// upload or a duplicate of an existing file, allocates pending file records
// on one backend, and hands out one signed token per upload. UploadFile
// redeems a token: it streams the bytes to the backend recorded on the
// pending file and then links the file into the tree.
//
// The byte transfer happens outside any metadata transaction. A transfer
// that fails or never arrives leaves a pending record behind, which the
// cleanup scheduler reclaims once it expires.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metrics"
	"github.com/marmos91/storagebox/pkg/uploadtoken"
)

// DefaultMimetype is recorded for files declared without a type.
const DefaultMimetype = "application/octet-stream"

// Store is the part of metadata.Store the orchestrator needs.
type Store interface {
	GetEntriesByPaths(ctx context.Context, fsID metadata.FilesystemID, locators []metadata.EntryLocator) ([]metadata.Entry, error)
	CreatePendingFileRecords(ctx context.Context, fsID metadata.FilesystemID, specs []metadata.PendingFileSpec) ([]metadata.File, error)
	GetFile(ctx context.Context, fsID metadata.FilesystemID, fileID metadata.FileID) (*metadata.File, error)
	FinishFileUpload(ctx context.Context, fsID metadata.FilesystemID, upload metadata.FinishUpload) (*metadata.Entry, error)
}

// Authorizer checks entry permissions. *access.Resolver implements it.
type Authorizer interface {
	CheckEntry(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, entryID *metadata.EntryID, perm metadata.Permission) error
}

// Backends resolves a backend instance by ID. *repository.Repository
// implements it.
type Backends interface {
	Get(ctx context.Context, id string) (backend.Backend, error)
}

// Config wires an Orchestrator.
type Config struct {
	Store    Store
	Access   Authorizer
	Selector backend.Selector
	Backends Backends
	Signer   *uploadtoken.Signer

	// Metrics is optional.
	Metrics metrics.UploadMetrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs the upload protocol for any filesystem.
type Orchestrator struct {
	store    Store
	access   Authorizer
	selector backend.Selector
	backends Backends
	signer   *uploadtoken.Signer
	metrics  metrics.UploadMetrics
	now      func() time.Time
	log      *slog.Logger
}

// New validates cfg and creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("upload: store is required")
	case cfg.Access == nil:
		return nil, errors.New("upload: access resolver is required")
	case cfg.Selector == nil:
		return nil, errors.New("upload: backend selector is required")
	case cfg.Backends == nil:
		return nil, errors.New("upload: backend repository is required")
	case cfg.Signer == nil:
		return nil, errors.New("upload: token signer is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:    cfg.Store,
		access:   cfg.Access,
		selector: cfg.Selector,
		backends: cfg.Backends,
		signer:   cfg.Signer,
		metrics:  cfg.Metrics,
		now:      now,
		log:      logger.With(logger.KeyComponent, "upload_orchestrator"),
	}, nil
}

// UploadFile redeems token: it streams data to the backend chosen at
// planning time and links the finished file into the tree.
//
// A backend failure leaves the file pending and is returned as is; cleanup
// reclaims the record after it expires.
func (o *Orchestrator) UploadFile(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, token string, data io.Reader) (entry *metadata.Entry, err error) {
	start := time.Now()
	var declared int64
	defer func() {
		metrics.RecordFinished(o.metrics, declared, time.Since(start), err)
	}()

	payload, err := o.signer.Verify(fsID, token)
	if err != nil {
		return nil, err
	}
	if err := o.access.CheckEntry(ctx, user, fsID, payload.ParentID, metadata.PermissionWrite); err != nil {
		return nil, err
	}

	file, err := o.store.GetFile(ctx, fsID, payload.FileID)
	if err != nil {
		return nil, err
	}
	declared = file.Bytes
	if file.UploadFinished {
		return nil, metadata.NewFileAlreadyUploadedError(file.ID)
	}
	if file.Expires != nil && !file.Expires.After(o.now()) {
		return nil, metadata.NewUploadExpiredError(file.ID)
	}

	b, err := o.backends.Get(ctx, file.BackendID)
	if err != nil {
		return nil, fmt.Errorf("resolve backend %s: %w", file.BackendID, err)
	}
	if err := b.UploadStream(ctx, file.BackendURI, data, file.Bytes); err != nil {
		o.log.WarnContext(ctx, "Upload stream failed, file stays pending",
			logger.FilesystemID(int64(fsID)), logger.FileID(int64(file.ID)),
			logger.Backend(file.BackendID), logger.Err(err))
		return nil, fmt.Errorf("upload file %d: %w", file.ID, err)
	}

	entry, err = o.store.FinishFileUpload(ctx, fsID, metadata.FinishUpload{
		FileID:   file.ID,
		ParentID: payload.ParentID,
		Name:     payload.Name,
		Replace:  payload.Replace,
	})
	if err != nil {
		return nil, err
	}

	o.log.DebugContext(ctx, "Upload finished",
		logger.FilesystemID(int64(fsID)), logger.FileID(int64(file.ID)),
		logger.EntryID(int64(entry.ID)), logger.Bytes(file.Bytes))
	return entry, nil
}
