package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return OrDefault(nil, "unknown")
}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware puts a request scoped logger into the context and logs one line
// per completed request. The request id comes from X-Request-ID or is generated.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	httpLogger := logger.WithComponent(ComponentHTTP)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			reqLogger := httpLogger.With(FieldRequestID, requestID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(NewContext(r.Context(), reqLogger)))

			level := slog.LevelInfo
			if rec.status >= 500 {
				level = slog.LevelError
			} else if rec.status >= 400 {
				level = slog.LevelWarn
			}
			fields := NewFields().WithHTTPResponse(r.Method, r.URL.Path, rec.status, time.Since(start).Milliseconds())
			if r.URL.RawQuery != "" {
				fields[FieldQuery] = r.URL.RawQuery
			}
			reqLogger.Log(r.Context(), level, "HTTP request completed", fields.ToSlice()...)
		})
	}
}
