package handlers

import (
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/matchaleaf/storefront/internal/observability"
)

// SecurityHeaders sets baseline security headers on every response. The API
// only serves JSON, so framing and sniffing are disabled outright.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// RequireSameOrigin rejects state-changing browser requests unless Origin
// (or Referer when Origin is absent) points at this service or one of the
// configured storefront origins.
func (h *Handlers) RequireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestMutatesState(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		meter := observability.MeterFromContext(ctx)
		meter.Count("security.same_origin.checked", 1)

		header, value := "origin", strings.TrimSpace(r.Header.Get("Origin"))
		if value == "" {
			header, value = "referer", strings.TrimSpace(r.Header.Get("Referer"))
		}

		reason := ""
		switch {
		case value == "":
			reason = "missing_origin_and_referer"
		case !h.trustedSource(value, r):
			reason = "untrusted_" + header
		}
		if reason != "" {
			meter.Count("security.same_origin.blocked", 1, sentry.WithAttributes(attribute.String("reason", reason)))
			h.loggerFromContext(ctx).Warn("blocked cross-origin request", "reason", reason, header, value)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestMutatesState(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (h *Handlers) trustedSource(rawURL string, r *http.Request) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	if h.config == nil {
		return host == normalizeHost(r.Host)
	}
	if slices.Contains(h.config.CORSAllowedOrigins, "*") {
		return true
	}

	trusted := []string{normalizeHost(r.Host), hostOf(h.config.BaseURL)}
	for _, origin := range h.config.CORSAllowedOrigins {
		trusted = append(trusted, hostOf(origin))
	}
	return slices.Contains(trusted, host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
