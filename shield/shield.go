// Package shield carries the HTTP middleware every timecap surface mounts:
// security headers, request tracing with a per-request logger, and body size
// limits.
package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey holds the per-request logger in the request context.
const LoggerKey contextKey = "shield.logger"

// TraceIDKey holds the request trace id in the request context.
const TraceIDKey contextKey = "shield.trace"

// HeaderConfig tunes the security headers middleware.
type HeaderConfig struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ReferrerPolicy        string
}

// DefaultHeaders suits a service that serves images and small HTML/JSON
// responses and embeds nothing.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		ContentSecurityPolicy: "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'",
		FrameOptions:          "DENY",
		ReferrerPolicy:        "no-referrer",
	}
}

// SecurityHeaders stamps conservative browser-facing headers on every
// response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			if cfg.FrameOptions != "" {
				h.Set("X-Frame-Options", cfg.FrameOptions)
			}
			if cfg.ContentSecurityPolicy != "" {
				h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
			}
			if cfg.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", cfg.ReferrerPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TraceID assigns every request a short random id, exposes it as X-Trace-ID,
// and parks a logger annotated with it in the context.
func TraceID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := newTraceID()
			w.Header().Set("X-Trace-ID", id)
			logger := base.With("trace_id", id)
			ctx := context.WithValue(r.Context(), TraceIDKey, id)
			ctx = context.WithValue(ctx, LoggerKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger returns the request-scoped logger, or the default logger outside
// a traced request.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// GetTraceID returns the request trace id, or "".
func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func newTraceID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b[:])
}

// MaxBody caps request body size. Requests are small here; anything large is
// a mistake or an attack.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// Default is the standard middleware stack, outermost first.
func Default(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		TraceID(logger),
		SecurityHeaders(DefaultHeaders()),
		MaxBody(1 << 20),
	}
}
