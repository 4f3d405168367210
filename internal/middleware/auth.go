package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/peakform/peakform/internal/auth"
)

// TokenValidator validates a bearer token and returns its claims.
// Satisfied by *auth.JWTService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// Authenticate is a middleware that validates the Authorization bearer token
// and stores the user id and role in the request context. Requests without a
// valid token are rejected with 401.
func Authenticate(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, r, "missing Authorization header")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, r, "Authorization header must be a bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				slog.DebugContext(r.Context(), "token validation failed", "error", err)
				writeAuthError(w, r, "invalid or expired token")
				return
			}

			ctx := SetUserID(r.Context(), claims.Subject)
			ctx = SetUserRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole is a middleware that rejects requests whose authenticated role
// does not match. Must run after Authenticate.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserRole(r.Context()) != role {
				SetErrorCode(r.Context(), "forbidden")
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":"forbidden","message":"insufficient role"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	SetErrorCode(r.Context(), "auth_failed")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"auth_failed","message":"` + message + `"}}`))
}
