package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the minimum severity a record needs to be written.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	level  atomic.Int32
	format atomic.Value // "text" or "json"

	mu      sync.RWMutex
	out     io.Writer = os.Stdout
	color   bool
	slogger *slog.Logger
	closer  io.Closer
)

func init() {
	level.Store(int32(LevelInfo))
	format.Store("text")
	color = isTerminal(os.Stdout)
	rebuild()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ParseLevel converts a level name to a Level. Unknown names report false.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

// rebuild swaps the handler after a level, format or output change.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: Level(level.Load()).slog()}

	var h slog.Handler
	if f, _ := format.Load().(string); f == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = newTextHandler(out, opts, color)
	}
	slogger = slog.New(h)
}

// Init configures the process logger. Output is "stdout", "stderr" or a
// file path opened in append mode.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, useColor, c, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		mu.Lock()
		if closer != nil {
			_ = closer.Close()
		}
		out, color, closer = w, useColor, c
		mu.Unlock()
	}

	if cfg.Level != "" {
		if _, ok := ParseLevel(cfg.Level); !ok {
			return fmt.Errorf("invalid log level %q", cfg.Level)
		}
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}

	rebuild()
	return nil
}

func openOutput(target string) (io.Writer, bool, io.Closer, error) {
	switch strings.ToLower(target) {
	case "stdout":
		return os.Stdout, isTerminal(os.Stdout), nil, nil
	case "stderr":
		return os.Stderr, isTerminal(os.Stderr), nil, nil
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open log file %q: %w", target, err)
	}
	return f, false, f, nil
}

// InitWithWriter points the logger at w. Used by tests.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	mu.Lock()
	out = w
	color = enableColor
	mu.Unlock()

	if lvl != "" {
		SetLevel(lvl)
	}
	if fmtName != "" {
		SetFormat(fmtName)
	}
	rebuild()
}

// SetLevel changes the minimum level. Invalid names are ignored.
func SetLevel(name string) {
	l, ok := ParseLevel(name)
	if !ok {
		return
	}
	level.Store(int32(l))
	rebuild()
}

// GetLevel returns the active minimum level.
func GetLevel() Level {
	return Level(level.Load())
}

// SetFormat switches between "text" and "json". Invalid names are ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != "text" && name != "json" {
		return
	}
	format.Store(name)
	rebuild()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func enabled(l Level) bool {
	return l >= Level(level.Load())
}

// Debug logs at debug level. Usage: Debug("message", "key", value, ...)
func Debug(msg string, args ...any) {
	if enabled(LevelDebug) {
		current().Debug(msg, args...)
	}
}

// Info logs at info level.
func Info(msg string, args ...any) {
	if enabled(LevelInfo) {
		current().Info(msg, args...)
	}
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	if enabled(LevelWarn) {
		current().Warn(msg, args...)
	}
}

// Error logs at error level.
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// DebugCtx logs at debug level, prefixing the fields of the LogContext in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelDebug) {
		current().Debug(msg, withContextFields(ctx, args)...)
	}
}

// InfoCtx logs at info level with context fields.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelInfo) {
		current().Info(msg, withContextFields(ctx, args)...)
	}
}

// WarnCtx logs at warn level with context fields.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelWarn) {
		current().Warn(msg, withContextFields(ctx, args)...)
	}
}

// ErrorCtx logs at error level with context fields.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	current().Error(msg, withContextFields(ctx, args)...)
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Duration returns the milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Infof logs a printf-style message at info level.
func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		current().Info(fmt.Sprintf(format, v...))
	}
}

// Warnf logs a printf-style message at warn level.
func Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		current().Warn(fmt.Sprintf(format, v...))
	}
}
