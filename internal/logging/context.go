package logging

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.New().String()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the trace ID stored in ctx, or ""
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := FromContext(ctx).WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// TradeContext creates a logger context for trade operations
func TradeContext(tradeID, symbol string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"trade_id": tradeID,
		"symbol":   symbol,
	}).WithComponent("trade")
}

// APIContext creates a logger for a call to the journal backend, keeping
// the request's trace id when ctx carries one
func APIContext(ctx context.Context, method, path string, statusCode int) *Logger {
	return FromContext(ctx).WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
	}).WithComponent("journal-api")
}

// PollContext creates a logger context for a shared polling topic
func PollContext(topic string, interval time.Duration) *Logger {
	return Default().WithFields(map[string]interface{}{
		"topic":    topic,
		"interval": interval.String(),
	}).WithComponent("poll")
}

// WebSocketContext creates a logger context for WebSocket operations
func WebSocketContext(clientID, userID string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"client_id": clientID,
		"user_id":   userID,
	}).WithComponent("websocket")
}

// NotificationContext creates a logger context for notification operations
func NotificationContext(notificationID string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"notification_id": notificationID,
	}).WithComponent("notification")
}

// SessionContext creates a logger context for session operations
func SessionContext(backend string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"backend": backend,
	}).WithComponent("session")
}

// HTTPMiddleware is a middleware that adds logging to HTTP requests
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		// Create logger with request context
		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		}).WithComponent("http")

		ctx := NewContext(r.Context(), l)
		ctx = context.WithValue(ctx, traceIDKey, traceID)
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		wrapped.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		l.WithDuration(duration).WithField("status_code", wrapped.statusCode).Info("Request completed")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
