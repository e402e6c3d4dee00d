package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields.
type LogContext struct {
	RequestID  string    // chi request ID
	TraceID    string    // OpenTelemetry trace ID
	SpanID     string    // OpenTelemetry span ID
	Filesystem string    // filesystem alias the request targets
	Issuer     string    // caller identity issuer
	Subject    string    // caller identity subject
	ClientIP   string    // remote address without port
	StartTime  time.Time // for duration calculation
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a request from clientIP.
func NewLogContext(requestID, clientIP string) *LogContext {
	return &LogContext{
		RequestID: requestID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone returns a shallow copy.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithFilesystem returns a copy with the filesystem alias set.
func (lc *LogContext) WithFilesystem(alias string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Filesystem = alias
	}
	return c
}

// WithCaller returns a copy with the caller identity set.
func (lc *LogContext) WithCaller(issuer, subject string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Issuer = issuer
		c.Subject = subject
	}
	return c
}

// WithTrace returns a copy with trace info set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns the milliseconds since StartTime.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 14+len(args))
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, key, value)
		}
	}
	add(KeyRequestID, lc.RequestID)
	add(KeyTraceID, lc.TraceID)
	add(KeySpanID, lc.SpanID)
	add(KeyFilesystem, lc.Filesystem)
	add(KeyIssuer, lc.Issuer)
	add(KeySubject, lc.Subject)
	add(KeyClientIP, lc.ClientIP)

	return append(fields, args...)
}
