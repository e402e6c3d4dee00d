package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, lvl, format string) *bytes.Buffer {
	t.Helper()

	buf := new(bytes.Buffer)
	prevLevel := GetLevel()
	prevFormat, _ := formatName()
	InitWithWriter(buf, lvl, format, false)

	t.Cleanup(func() {
		InitWithWriter(os.Stdout, prevLevel.String(), prevFormat, false)
	})
	return buf
}

func formatName() (string, bool) {
	f, ok := format.Load().(string)
	return f, ok
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
		skip  []string
	}{
		{"DEBUG", []string{"debug msg", "info msg", "warn msg", "error msg"}, nil},
		{"INFO", []string{"info msg", "warn msg", "error msg"}, []string{"debug msg"}},
		{"WARN", []string{"warn msg", "error msg"}, []string{"debug msg", "info msg"}},
		{"ERROR", []string{"error msg"}, []string{"debug msg", "info msg", "warn msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := capture(t, tt.level, "text")

			Debug("debug msg")
			Info("info msg")
			Warn("warn msg")
			Error("error msg")

			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.skip {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestInvalidLevelIgnored(t *testing.T) {
	capture(t, "WARN", "text")

	SetLevel("LOUD")
	assert.Equal(t, LevelWarn, GetLevel())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Config{Level: "verbose"})
	require.Error(t, err)
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, "INFO", "text")

	Info("entry created", KeyEntryID, 42, KeyName, "a.txt")

	line := buf.String()
	assert.Contains(t, line, "[INFO] entry created")
	assert.Contains(t, line, "entry_id=42")
	assert.Contains(t, line, "name=a.txt")
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, "INFO", "json")

	Info("upload finished", FileID(7), Bytes(1000))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "upload finished", rec["msg"])
	assert.EqualValues(t, 7, rec[KeyFileID])
	assert.EqualValues(t, 1000, rec[KeyBytes])
}

func TestContextFields(t *testing.T) {
	buf := capture(t, "DEBUG", "json")

	lc := NewLogContext("req-1", "10.0.0.1").
		WithFilesystem("docs").
		WithCaller("idp", "alice")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "listing directory")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-1", rec[KeyRequestID])
	assert.Equal(t, "docs", rec[KeyFilesystem])
	assert.Equal(t, "idp", rec[KeyIssuer])
	assert.Equal(t, "alice", rec[KeySubject])
	assert.Equal(t, "10.0.0.1", rec[KeyClientIP])
}

func TestContextWithoutLogContext(t *testing.T) {
	buf := capture(t, "INFO", "text")

	InfoCtx(context.Background(), "plain")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), "plain"))
}

func TestCloneIsIndependent(t *testing.T) {
	lc := NewLogContext("req", "1.2.3.4")
	c := lc.WithFilesystem("media")

	assert.Empty(t, lc.Filesystem)
	assert.Equal(t, "media", c.Filesystem)
	assert.Nil(t, (*LogContext)(nil).Clone())
}

func TestErrAttr(t *testing.T) {
	buf := capture(t, "INFO", "text")

	Warn("backend failed", Err(errors.New("boom")), Err(nil))
	assert.Contains(t, buf.String(), "error=boom")
}

func TestGroupedAttrsFlatten(t *testing.T) {
	buf := capture(t, "INFO", "text")

	With(KeyComponent, "cleanup").WithGroup("pass").Info("done", KeyCount, 3)
	line := buf.String()
	assert.Contains(t, line, "component=cleanup")
	assert.Contains(t, line, "pass.count=3")
}
