package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"identity/internal/http/response"
	"identity/internal/lib/jwt"
	"identity/internal/lib/sl"
)

type ctxKey string

const claimsKey ctxKey = "authClaims"

// ClaimsFromContext returns the access-token claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*jwt.Claims)
	return claims, ok
}

// Authenticate validates the bearer token and stores its claims in the
// request context. Every validation failure yields the same generic 401;
// the distinct reason only appears in server logs.
func Authenticate(logger *slog.Logger, opts jwt.Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				response.Message(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}

			claims, err := jwt.ParseToken(strings.TrimPrefix(header, "Bearer "), opts)
			if err != nil {
				logger.Warn("token validation failed",
					slog.String("op", "middleware.Authenticate"), sl.Err(err))
				response.Message(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows the request through when the token's role claim is in
// the required set. Exact, case-sensitive comparison.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Message(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Message(w, http.StatusForbidden, "insufficient role")
		})
	}
}
