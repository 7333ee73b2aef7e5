package handlers

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/matchaleaf/storefront/internal/observability"
)

// MetricsContext puts a Sentry meter carrying the request attributes into
// the context; services count against it with observability.MeterFromContext.
// It runs after RequestLogger so the request id is already assigned.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(requestMeterAttrs(r)...)

		next.ServeHTTP(w, r.WithContext(observability.WithMeter(ctx, meter)))
	})
}

func requestMeterAttrs(r *http.Request) []attribute.Builder {
	attrs := []attribute.Builder{
		attribute.String("http.request_id", requestIDFromRequest(r)),
		attribute.String("http.method", r.Method),
	}
	if route := routeLabel(r); route != "" {
		attrs = append(attrs, attribute.String("http.route", route))
	}
	if country := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country"))); country != "" {
		attrs = append(attrs, attribute.String("shop.country", country))
	}
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
		attrs = append(attrs, attribute.String("http.origin", origin))
	}
	return attrs
}
