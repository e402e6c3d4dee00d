package filesystem

import (
	"context"
	"io"

	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/upload"
)

// StartFileUpload plans a batch of uploads into this filesystem.
func (f *Filesystem) StartFileUpload(ctx context.Context, user *identity.UserContext, files []upload.FileRequest) (_ []upload.Result, err error) {
	var total int64
	for _, file := range files {
		total += file.Bytes
	}
	ctx, span := f.span(ctx, telemetry.SpanStartFileUpload, user, telemetry.BatchSize(len(files)), telemetry.Size(total))
	defer func() { telemetry.EndSpan(span, err) }()

	return f.svc.uploads.StartFileUpload(ctx, user, f.fs.ID, files)
}

// UploadFile sends the bytes of a planned upload and returns the new entry.
func (f *Filesystem) UploadFile(ctx context.Context, user *identity.UserContext, token string, data io.Reader) (_ *metadata.Entry, err error) {
	ctx, span := f.span(ctx, telemetry.SpanUploadFile, user)
	defer func() { telemetry.EndSpan(span, err) }()

	entry, err := f.svc.uploads.UploadFile(ctx, user, f.fs.ID, token, data)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(telemetry.EntryID(int64(entry.ID)), telemetry.Filename(entry.Name))
	return entry, nil
}
