package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/code100x/contestauth"
)

// Validator verifies access tokens. *contestauth.Engine satisfies it.
type Validator interface {
	ValidateAccess(token string) (contestauth.AccessClaims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [RequireAuth].
func ClaimsFromContext(ctx context.Context) (contestauth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(contestauth.AccessClaims)
	return claims, ok
}

// WithClaims stores claims in ctx. Handlers under test use it to skip token
// minting.
func WithClaims(ctx context.Context, claims contestauth.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// access token with 401 and stores the claims for the next handler.
func RequireAuth(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "authentication unavailable")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}

			claims, err := v.ValidateAccess(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole must run after [RequireAuth]. Requests whose token carries a
// different role get 403.
func RequireRole(role contestauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			if claims.Role != role {
				writeError(w, http.StatusForbidden, "Forbidden", contestauth.ErrPermissionDenied.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireAuth followed by RequireRole(RoleAdmin).
func RequireAdmin(v Validator) func(http.Handler) http.Handler {
	auth := RequireAuth(v)
	admin := RequireRole(contestauth.RoleAdmin)
	return func(next http.Handler) http.Handler {
		return auth(admin(next))
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": message,
	})
}
