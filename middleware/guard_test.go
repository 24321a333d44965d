package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/code100x/contestauth"
)

type stubValidator map[string]contestauth.AccessClaims

func (s stubValidator) ValidateAccess(token string) (contestauth.AccessClaims, error) {
	c, ok := s[token]
	if !ok {
		return contestauth.AccessClaims{}, contestauth.ErrTokenInvalid
	}
	return c, nil
}

var validator = stubValidator{
	"user-token":  {UserID: "u1", Role: contestauth.RoleUser},
	"admin-token": {UserID: "a1", Role: contestauth.RoleAdmin},
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
		}
		w.Header().Set("X-User", claims.UserID)
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(validator)(okHandler(t))

	cases := []struct {
		auth string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer user-token", http.StatusNoContent},
		{"bearer user-token", http.StatusNoContent},
	}
	for _, tc := range cases {
		if rec := serve(h, tc.auth); rec.Code != tc.want {
			t.Errorf("%q: status %d, want %d", tc.auth, rec.Code, tc.want)
		}
	}

	rec := serve(h, "Bearer user-token")
	if rec.Header().Get("X-User") != "u1" {
		t.Fatalf("claims not propagated: %q", rec.Header().Get("X-User"))
	}
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(validator)(okHandler(t))

	if rec := serve(h, "Bearer user-token"); rec.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: %d", rec.Code)
	}
	if rec := serve(h, "Bearer admin-token"); rec.Code != http.StatusNoContent {
		t.Fatalf("admin: %d", rec.Code)
	}
	if rec := serve(h, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", rec.Code)
	}
}

func TestRequireRoleWithoutAuthIsUnauthorized(t *testing.T) {
	h := RequireRole(contestauth.RoleAdmin)(okHandler(t))
	if rec := serve(h, "Bearer admin-token"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	if _, ok := bearerToken("Bearer"); ok {
		t.Fatal("short header must fail")
	}
	if tok, ok := bearerToken("Bearer  abc "); !ok || tok != "abc" {
		t.Fatalf("got %q %v", tok, ok)
	}
	if !errors.Is(contestauth.ErrTokenInvalid, contestauth.ErrTokenInvalid) {
		t.Fatal("sanity")
	}
}
