package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS lets the storefront origins call the JSON API from the browser.
// Without configured origins only same-origin requests are served.
func (h *Handlers) CORS(next http.Handler) http.Handler {
	origins := make([]string, 0, len(h.config.CORSAllowedOrigins))
	for _, origin := range h.config.CORSAllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return next
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})(next)
}
