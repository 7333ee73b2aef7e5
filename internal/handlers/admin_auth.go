package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminRole = "admin"

type adminClaimsKey struct{}

// AdminClaims are the claims the identity provider puts in operator tokens.
// The role is read from the top level or from app_metadata.
type AdminClaims struct {
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	AppMetadata struct {
		Role string `json:"role,omitempty"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

func (c *AdminClaims) role() string {
	if role := strings.TrimSpace(c.Role); role != "" && role != "authenticated" {
		return role
	}
	return strings.TrimSpace(c.AppMetadata.Role)
}

// AdminFromContext returns the operator claims set by RequireAdmin.
func AdminFromContext(ctx context.Context) (*AdminClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey{}).(*AdminClaims)
	return claims, ok
}

// RequireAdmin accepts HS256 bearer tokens signed with ADMIN_JWT_SECRET and
// carrying the admin role.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := h.loggerFromContext(ctx)

		if !h.config.AdminAPIEnabled() {
			writeError(w, http.StatusServiceUnavailable, "admin API is not configured")
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := h.parseAdminToken(raw)
		if err != nil {
			logger.Warn("rejected admin token", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.role() != adminRole {
			logger.Warn("admin access denied", "subject", claims.Subject, "role", claims.role())
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}

		ctx = context.WithValue(ctx, adminClaimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) parseAdminToken(raw string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return []byte(h.config.AdminJWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("admin token is not valid")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
