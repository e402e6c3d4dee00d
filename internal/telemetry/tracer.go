package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys. These follow OpenTelemetry semantic conventions
// where applicable; service-specific keys use the "fs." prefix.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP = "client.ip"

	// ========================================================================
	// Filesystem attributes
	// ========================================================================
	AttrOperation    = "fs.operation"
	AttrFilesystem   = "fs.filesystem_id"
	AttrAlias        = "fs.alias"
	AttrEntryID      = "fs.entry_id"
	AttrParentID     = "fs.parent_id"
	AttrFileID       = "fs.file_id"
	AttrFilename     = "fs.filename"
	AttrSize         = "fs.size"
	AttrBatchSize    = "fs.batch_size"
	AttrDecision     = "fs.decision"
	AttrDownloadMode = "fs.download_mode"

	// ========================================================================
	// User attributes
	// ========================================================================
	AttrIssuer  = "user.issuer"
	AttrSubject = "user.subject"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrBackendID   = "storage.backend_id"
	AttrBackendType = "storage.backend_type"
	AttrKey         = "storage.key"

	// ========================================================================
	// Cleanup attributes
	// ========================================================================
	AttrReclaimed = "cleanup.reclaimed"
	AttrFailed    = "cleanup.failed"
)

// Span names. Format: <component>.<operation>.
const (
	SpanHTTPRequest = "http.request"

	SpanFilesystemsList   = "filesystems.list"
	SpanFilesystemsCreate = "filesystems.create"

	SpanCreateDirectory        = "filesystem.createDirectory"
	SpanListDirectory          = "filesystem.listDirectory"
	SpanStartFileUpload        = "filesystem.startFileUpload"
	SpanUploadFile             = "filesystem.uploadFile"
	SpanDownload               = "filesystem.downloadFileOrRedirect"
	SpanDeleteEntry            = "filesystem.deleteEntry"
	SpanMoveEntry              = "filesystem.moveEntry"
	SpanSetEntryPermission     = "filesystem.setEntryPermission"
	SpanListEntryPermissions   = "filesystem.listEntryPermissions"
	SpanRevokeAdministratively = "filesystem.revokePermissionAdministratively"
	SpanSetFSPermission        = "filesystem.setFilesystemPermission"

	SpanBackendUpload   = "backend.upload"
	SpanBackendDownload = "backend.download"
	SpanBackendDelete   = "backend.delete"

	SpanCleanupPass = "cleanup.pass"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// FilesystemID returns an attribute for the filesystem ID
func FilesystemID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrFilesystem, id)
}

// Alias returns an attribute for the filesystem alias
func Alias(alias string) attribute.KeyValue {
	return attribute.String(AttrAlias, alias)
}

// EntryID returns an attribute for an entry ID
func EntryID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrEntryID, id)
}

// ParentID returns an attribute for a parent entry ID. Root is -1.
func ParentID(id *int64) attribute.KeyValue {
	if id == nil {
		return attribute.Int64(AttrParentID, -1)
	}
	return attribute.Int64(AttrParentID, *id)
}

// FileID returns an attribute for a file ID
func FileID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrFileID, id)
}

// Filename returns an attribute for an entry name
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// Size returns an attribute for a byte count
func Size(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, n)
}

// BatchSize returns an attribute for the number of files in a request
func BatchSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

// BackendID returns an attribute for a storage backend
func BackendID(id string) attribute.KeyValue {
	return attribute.String(AttrBackendID, id)
}

// StorageKey returns an attribute for an object URI
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// DownloadMode returns an attribute for how a download was served.
func DownloadMode(mode string) attribute.KeyValue {
	return attribute.String(AttrDownloadMode, mode)
}

// Reclaimed returns an attribute for the files a cleanup pass removed.
func Reclaimed(n int) attribute.KeyValue {
	return attribute.Int(AttrReclaimed, n)
}

// Failed returns an attribute for the files a cleanup pass had to keep.
func Failed(n int) attribute.KeyValue {
	return attribute.Int(AttrFailed, n)
}

// Caller returns the issuer and subject attributes of a caller.
func Caller(issuer, subject string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrIssuer, issuer),
		attribute.String(AttrSubject, subject),
	}
}

// StartFilesystemSpan starts a span for a filesystem operation.
func StartFilesystemSpan(ctx context.Context, name string, fsID int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{FilesystemID(fsID)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartBackendSpan starts a span for a storage backend operation.
func StartBackendSpan(ctx context.Context, name, backendID, uri string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{BackendID(backendID), StorageKey(uri)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindClient))
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
