package middleware

import (
	"casewatch/config"
	"casewatch/logger"
	"casewatch/models"
	"casewatch/utils"
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

// AdminSubjectKey holds the authenticated admin subject on the request context
const AdminSubjectKey contextKey = "admin_subject"

// AdminAuth accepts either the static ADMIN_TOKEN or an HS256 admin JWT.
// With neither configured every admin request is refused.
type AdminAuth struct {
	staticToken string
	jwtSecret   []byte
	issuer      string
}

// NewAdminAuth creates admin auth from configuration
func NewAdminAuth(cfg config.AuthConfig) *AdminAuth {
	return &AdminAuth{
		staticToken: cfg.AdminToken,
		jwtSecret:   []byte(cfg.JWTSecret),
		issuer:      cfg.JWTIssuer,
	}
}

// RequireAdmin guards admin-only routes
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.staticToken == "" && len(a.jwtSecret) == 0 {
			respondWithError(w, http.StatusForbidden, "Forbidden", "Admin access not configured")
			return
		}
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized", "Authorization header required")
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized", "Invalid authorization format. Expected: Bearer <token>")
			return
		}
		token := parts[1]

		if a.staticToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.staticToken)) == 1 {
			ctx := context.WithValue(r.Context(), AdminSubjectKey, "static-token")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if len(a.jwtSecret) > 0 {
			claims, err := utils.ParseAdminJWT(token, a.jwtSecret, a.issuer)
			if err == nil {
				ctx := context.WithValue(r.Context(), AdminSubjectKey, claims.Subject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			logger.Component("auth").WithError(err).Debug("admin token rejected")
		}
		respondWithError(w, http.StatusForbidden, "Forbidden", "Invalid admin token")
	})
}

// AdminSubject returns the authenticated admin subject, if any
func AdminSubject(ctx context.Context) string {
	s, _ := ctx.Value(AdminSubjectKey).(string)
	return s
}

func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: errorType, Message: message, Code: statusCode})
}
