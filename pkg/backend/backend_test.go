package backend_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/backend/memory"
)

func TestLimitStream(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		size     int64
		wantErr  bool
		received int64
	}{
		{name: "exact", input: "abcd", size: 4},
		{name: "empty", input: "", size: 0},
		{name: "short", input: "ab", size: 4, wantErr: true, received: 2},
		{name: "long", input: "abcdef", size: 4, wantErr: true, received: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, check := backend.LimitStream(strings.NewReader(tt.input), tt.size)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.LessOrEqual(t, int64(len(data)), tt.size)

			err = check("uri")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var mismatch *backend.SizeMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.size, mismatch.Declared)
			assert.Equal(t, tt.received, mismatch.Received)
		})
	}
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename=a.txt`, backend.ContentDisposition(backend.DispositionAttachment, "a.txt"))
	assert.Equal(t, `inline; filename="my file.txt"`, backend.ContentDisposition(backend.DispositionInline, "my file.txt"))
	assert.Contains(t, backend.ContentDisposition("", "résumé.pdf"), "filename*=utf-8''r%C3%A9sum%C3%A9.pdf")
}

func TestStaticSelector(t *testing.T) {
	id, err := backend.StaticSelector("primary").SelectBackend(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "primary", id)

	_, err = backend.StaticSelector("").SelectBackend(context.Background(), 10)
	assert.ErrorIs(t, err, backend.ErrBackendNotFound)
}

func TestDefinitionDuration(t *testing.T) {
	def := backend.Definition{ID: "b", Config: map[string]any{
		"str": "90s", "int": 30, "float": 1.5, "bad": "soon",
	}}

	d, err := def.Duration("str", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = def.Duration("int", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = def.Duration("float", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = def.Duration("missing", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = def.Duration("bad", time.Minute)
	assert.Error(t, err)
}

type recordingMetrics struct {
	ops   []string
	fails int
	bytes map[string]int64
}

func (m *recordingMetrics) ObserveOperation(_ string, op string, _ time.Duration, err error) {
	m.ops = append(m.ops, op)
	if err != nil {
		m.fails++
	}
}

func (m *recordingMetrics) RecordBytes(_ string, direction string, n int64) {
	if m.bytes == nil {
		m.bytes = make(map[string]int64)
	}
	m.bytes[direction] += n
}

type urlBackend struct {
	*memory.Store
	enabled bool
}

func (u urlBackend) DownloadURLsEnabled() bool { return u.enabled }

func (u urlBackend) GetDownloadURL(_ context.Context, uri, _ string, _ backend.Disposition, _ string) (string, error) {
	return "https://example.invalid/" + uri, nil
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	m := &recordingMetrics{}
	b := backend.Instrument("mem", memory.New(), m)

	require.NoError(t, b.UploadStream(ctx, "k", strings.NewReader("hello"), 5))
	rc, err := b.DownloadStream(ctx, "k")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, rc)
	require.NoError(t, rc.Close())

	_, err = b.DownloadStream(ctx, "missing")
	assert.True(t, errors.Is(err, backend.ErrObjectNotFound))
	require.NoError(t, b.DeleteFile(ctx, "k"))

	assert.Equal(t, []string{"upload", "download", "download", "delete"}, m.ops)
	assert.Equal(t, 1, m.fails)
	assert.Equal(t, int64(5), m.bytes["in"])
	assert.Equal(t, int64(5), m.bytes["out"])

	_, ok := backend.DownloadURLs(b)
	assert.False(t, ok, "memory backend has no URL capability")
}

func TestInstrumentKeepsURLCapability(t *testing.T) {
	m := &recordingMetrics{}

	enabled := backend.Instrument("u", urlBackend{Store: memory.New(), enabled: true}, m)
	p, ok := backend.DownloadURLs(enabled)
	require.True(t, ok)
	url, err := p.GetDownloadURL(context.Background(), "obj", "a.txt", backend.DispositionAttachment, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "https://example.invalid/obj", url)
	assert.Contains(t, m.ops, "presign")

	disabled := backend.Instrument("u", urlBackend{Store: memory.New()}, m)
	_, ok = backend.DownloadURLs(disabled)
	assert.False(t, ok)
}

func TestInstrumentNilMetrics(t *testing.T) {
	inner := memory.New()
	assert.Same(t, inner, backend.Instrument("mem", inner, nil))
}
