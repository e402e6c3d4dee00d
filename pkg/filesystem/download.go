package filesystem

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metrics"
)

// FileInfo is the transfer metadata of a streamed download.
type FileInfo struct {
	Name     string `json:"name"`
	Mimetype string `json:"mimetype"`
	Bytes    int64  `json:"bytes"`
}

// Download is either a URL the client fetches directly or an open stream.
// Exactly one of URL and Data is set; the caller must close Data.
type Download struct {
	URL  string
	Info FileInfo
	Data io.ReadCloser
}

// Redirect reports whether the download is served by URL.
func (d *Download) Redirect() bool {
	return d.URL != ""
}

// DownloadFileOrRedirect serves the bytes of a file entry. Requires canRead
// on it. Backends with download URLs enabled answer with a URL; every other
// backend streams.
func (f *Filesystem) DownloadFileOrRedirect(ctx context.Context, user *identity.UserContext, entryID metadata.EntryID, disposition backend.Disposition) (_ *Download, err error) {
	ctx, span := f.span(ctx, telemetry.SpanDownload, user, telemetry.EntryID(int64(entryID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := f.svc.access.CheckEntry(ctx, user, f.fs.ID, &entryID, metadata.PermissionRead); err != nil {
		return nil, err
	}
	entry, err := f.svc.store.GetEntry(ctx, f.fs.ID, entryID)
	if err != nil {
		return nil, err
	}
	if !entry.IsFile() || entry.FileID == nil {
		return nil, metadata.NewCannotDownloadDirectoryError(entryID)
	}
	file, err := f.svc.store.GetFile(ctx, f.fs.ID, *entry.FileID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(telemetry.FileID(int64(file.ID)), telemetry.BackendID(file.BackendID), telemetry.Size(file.Bytes))

	b, err := f.svc.backends.Get(ctx, file.BackendID)
	if err != nil {
		return nil, fmt.Errorf("resolve backend %s: %w", file.BackendID, err)
	}

	info := FileInfo{Name: entry.Name, Mimetype: file.Mimetype, Bytes: file.Bytes}
	if urls, ok := backend.DownloadURLs(b); ok {
		url, err := urls.GetDownloadURL(ctx, file.BackendURI, entry.Name, disposition, file.Mimetype)
		if err != nil {
			return nil, fmt.Errorf("download url for file %d: %w", file.ID, err)
		}
		span.SetAttributes(telemetry.DownloadMode(metrics.DownloadModeRedirect))
		metrics.RecordDownload(f.svc.metrics, metrics.DownloadModeRedirect, file.Bytes)
		return &Download{URL: url, Info: info}, nil
	}

	bctx, bspan := telemetry.StartBackendSpan(ctx, telemetry.SpanBackendDownload, file.BackendID, file.BackendURI)
	rc, err := b.DownloadStream(bctx, file.BackendURI)
	telemetry.EndSpan(bspan, err)
	if err != nil {
		return nil, fmt.Errorf("download file %d: %w", file.ID, err)
	}
	span.SetAttributes(telemetry.DownloadMode(metrics.DownloadModeStream))
	metrics.RecordDownload(f.svc.metrics, metrics.DownloadModeStream, file.Bytes)
	return &Download{Info: info, Data: rc}, nil
}
