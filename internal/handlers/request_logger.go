package handlers

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/matchaleaf/storefront/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// statusRecorder remembers the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// RequestLogger assigns a request id, puts a request-scoped logger in the
// context and records one log line plus HTTP metrics per request.
func (h *Handlers) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := requestIDFromRequest(r)
		r.Header.Set(requestIDHeader, requestID)
		w.Header().Set(requestIDHeader, requestID)

		route := routeLabel(r)
		logger := h.logger.With(requestLogAttrs(r, requestID, route)...)
		ctx := logging.WithLogger(r.Context(), logger)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.code()
		elapsed := time.Since(start)
		if route == "" {
			route = "unknown"
		}

		h.metrics.HTTPRequest(r.Method, route, status, elapsed)
		recordRequestMeter(r, route, status, elapsed)

		level := slog.LevelInfo
		switch {
		case isProbe(r.URL.Path):
			level = slog.LevelDebug
		case status >= http.StatusInternalServerError:
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "request completed",
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"bytes", rec.bytes,
		)
	})
}

func requestLogAttrs(r *http.Request, requestID, route string) []any {
	attrs := []any{
		"request_id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_ip", clientIP(r),
	}
	if route != "" {
		attrs = append(attrs, "route", route)
	}
	if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
		attrs = append(attrs, "user_agent", userAgent)
	}
	if r.ContentLength > 0 {
		attrs = append(attrs, "content_length", r.ContentLength)
	}
	return attrs
}

func recordRequestMeter(r *http.Request, route string, status int, elapsed time.Duration) {
	ctx := r.Context()
	meter := sentry.NewMeter(ctx).WithCtx(ctx)
	attrs := []attribute.Builder{
		attribute.String("http.method", r.Method),
		attribute.String("http.route", route),
		attribute.String("http.status_class", fmt.Sprintf("%dxx", status/100)),
	}
	meter.Count("http.server.requests", 1, sentry.WithAttributes(attrs...))
	meter.Distribution("http.server.duration", float64(elapsed.Milliseconds()),
		sentry.WithUnit(sentry.UnitMillisecond),
		sentry.WithAttributes(attrs...),
	)
	if status >= http.StatusInternalServerError {
		meter.Count("http.server.errors", 1, sentry.WithAttributes(attrs...))
	}
}

func isProbe(path string) bool {
	return path == "/health" || path == "/metrics"
}

// requestIDFromRequest keeps a caller supplied id so storefront and API
// logs can be joined.
func requestIDFromRequest(r *http.Request) string {
	if r != nil {
		if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" && len(id) <= 128 {
			return id
		}
	}
	return uuid.NewString()
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// routeLabel prefers the route name so metrics do not explode on order ids.
func routeLabel(r *http.Request) string {
	if r == nil {
		return ""
	}
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	if name := route.GetName(); name != "" {
		return name
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return template
}
