package backend

import (
	"context"
	"io"
	"time"
)

// Metrics receives backend operation observations. A nil Metrics disables
// collection.
type Metrics interface {
	ObserveOperation(backendID, operation string, duration time.Duration, err error)
	RecordBytes(backendID, direction string, bytes int64)
}

// Instrument wraps b so every operation is reported to m. The wrapper keeps
// the URLProvider capability of b.
func Instrument(id string, b Backend, m Metrics) Backend {
	if m == nil {
		return b
	}
	ib := &instrumented{id: id, b: b, m: m}
	if p, ok := b.(URLProvider); ok {
		return &instrumentedURLs{instrumented: ib, p: p}
	}
	return ib
}

type instrumented struct {
	id string
	b  Backend
	m  Metrics
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.m.ObserveOperation(i.id, op, time.Since(start), err)
}

func (i *instrumented) ObtainObjectURI(ctx context.Context) (string, error) {
	return i.b.ObtainObjectURI(ctx)
}

func (i *instrumented) UploadStream(ctx context.Context, uri string, r io.Reader, size int64) error {
	start := time.Now()
	counter := &CountingReader{R: r}
	err := i.b.UploadStream(ctx, uri, counter, size)
	i.observe("upload", start, err)
	i.m.RecordBytes(i.id, "in", counter.N)
	return err
}

func (i *instrumented) DownloadStream(ctx context.Context, uri string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.b.DownloadStream(ctx, uri)
	i.observe("download", start, err)
	if err != nil {
		return nil, err
	}
	return &countingReadCloser{ReadCloser: rc, done: func(n int64) { i.m.RecordBytes(i.id, "out", n) }}, nil
}

func (i *instrumented) DeleteFile(ctx context.Context, uri string) error {
	start := time.Now()
	err := i.b.DeleteFile(ctx, uri)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) HealthCheck(ctx context.Context) error {
	return i.b.HealthCheck(ctx)
}

func (i *instrumented) Close() error {
	return i.b.Close()
}

type instrumentedURLs struct {
	*instrumented
	p URLProvider
}

func (i *instrumentedURLs) DownloadURLsEnabled() bool {
	return i.p.DownloadURLsEnabled()
}

func (i *instrumentedURLs) GetDownloadURL(ctx context.Context, uri, name string, disposition Disposition, mimetype string) (string, error) {
	start := time.Now()
	url, err := i.p.GetDownloadURL(ctx, uri, name, disposition, mimetype)
	i.observe("presign", start, err)
	return url, err
}

type countingReadCloser struct {
	io.ReadCloser
	n    int64
	done func(int64)
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	if c.done != nil {
		c.done(c.n)
		c.done = nil
	}
	return c.ReadCloser.Close()
}
