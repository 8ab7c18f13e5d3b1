// Package logging builds the relay's structured logger. Values stored in a
// context with the With* helpers are attached to every record logged through
// the *Context methods, so components log with the context they were handed
// instead of carrying pre-bound loggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey contextKey = "request_id"
	// PublisherKey is the context key for the authenticated publishing service
	PublisherKey contextKey = "publisher"
	// HospitalIDKey is the context key for the hospital an operation targets
	HospitalIDKey contextKey = "hospital_id"

	namespaceKey    contextKey = "namespace"
	connectionIDKey contextKey = "connection_id"
	roomKey         contextKey = "room"
)

// contextKeys are copied onto records in this order.
var contextKeys = [...]contextKey{
	RequestIDKey,
	PublisherKey,
	HospitalIDKey,
	namespaceKey,
	connectionIDKey,
	roomKey,
}

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, text
	Output      io.Writer
	ServiceName string
	Environment string
}

// NewLogger creates the relay logger. Unknown levels fall back to info and
// unknown formats to JSON.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	})

	return slog.New(&contextHandler{handler: handler})
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// contextHandler adds the relay context values to each record.
type contextHandler struct {
	handler slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(contextAttrs(ctx)...)
	return h.handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{handler: h.handler.WithGroup(name)}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPublisher adds the publishing service name to the context
func WithPublisher(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, PublisherKey, service)
}

// WithHospitalID adds a hospital ID to the context
func WithHospitalID(ctx context.Context, hospitalID string) context.Context {
	return context.WithValue(ctx, HospitalIDKey, hospitalID)
}

// WithNamespace tags the context with a websocket namespace.
func WithNamespace(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, namespaceKey, namespace)
}

// WithConnectionID tags the context with a websocket connection.
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, connectionIDKey, connectionID)
}

// WithRoom tags the context with a room key.
func WithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, roomKey, room)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// LogPanic logs a recovered panic value with its stack trace.
func LogPanic(ctx context.Context, logger *slog.Logger, panicValue any) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	logger.ErrorContext(ctx, "panic recovered",
		"panic", panicValue,
		"stack_trace", string(buf[:n]),
	)
}

// LevelForStatus picks the level an HTTP outcome is logged at.
func LevelForStatus(statusCode int) slog.Level {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return slog.LevelError
	case statusCode >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// HTTPRequest describes one served request.
type HTTPRequest struct {
	Method       string
	Path         string
	StatusCode   int
	Duration     time.Duration
	BytesWritten int64
	ClientIP     string
	UserAgent    string
}

// LogHTTPRequest logs req at the level its status code calls for.
func LogHTTPRequest(ctx context.Context, logger *slog.Logger, req HTTPRequest) {
	logger.Log(ctx, LevelForStatus(req.StatusCode), "http request",
		"method", req.Method,
		"path", req.Path,
		"status_code", req.StatusCode,
		"duration_ms", req.Duration.Milliseconds(),
		"bytes_written", req.BytesWritten,
		"client_ip", req.ClientIP,
		"user_agent", req.UserAgent,
	)
}
