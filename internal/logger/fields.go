package logger

import "log/slog"

// Field keys shared by every component so log lines can be queried uniformly.
const (
	KeyRequestID = "request_id"
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyClientIP  = "client_ip"

	// Caller identity
	KeyIssuer  = "issuer"
	KeySubject = "subject"

	// Filesystem tree
	KeyFilesystem   = "filesystem"
	KeyFilesystemID = "filesystem_id"
	KeyEntryID      = "entry_id"
	KeyParentID     = "parent_id"
	KeyFileID       = "file_id"
	KeyName         = "name"
	KeyEntryType    = "entry_type"
	KeyPermission   = "permission"

	// Blobs and backends
	KeyBackend  = "backend"
	KeyURI      = "uri"
	KeyBytes    = "bytes"
	KeyMimetype = "mimetype"

	KeyComponent  = "component"
	KeyOperation  = "operation"
	KeyCount      = "count"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyStatus     = "status"
)

// Err returns an error attribute, or an empty attribute when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Backend returns a backend ID attribute.
func Backend(id string) slog.Attr {
	return slog.String(KeyBackend, id)
}

// FilesystemID returns a filesystem ID attribute.
func FilesystemID(id int64) slog.Attr {
	return slog.Int64(KeyFilesystemID, id)
}

// EntryID returns an entry ID attribute.
func EntryID(id int64) slog.Attr {
	return slog.Int64(KeyEntryID, id)
}

// FileID returns a file ID attribute.
func FileID(id int64) slog.Attr {
	return slog.Int64(KeyFileID, id)
}

// Bytes returns a byte count attribute.
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// DurationMs returns a duration attribute in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
