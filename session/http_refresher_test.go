package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newCookieServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/signin", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/", HttpOnly: true})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "a1",
			"user":        alice,
		})
	})
	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("refreshToken")
		if err != nil || c.Value == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized", "message": "refresh token missing"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": "a2"})
	})
	mux.HandleFunc("/api/signout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "", Path: "/", MaxAge: -1})
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "signed out"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRefresherCookieFlow(t *testing.T) {
	srv := newCookieServer(t)
	r, err := NewHTTPRefresher(srv.URL+"/api/", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var se *StatusError
	if _, err := r.Refresh(ctx); !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized || se.Kind != "Unauthorized" {
		t.Fatalf("refresh without cookie: %v", err)
	}

	user, token, err := r.Signin(ctx, alice.Email, "secret1")
	if err != nil || token != "a1" || user != alice {
		t.Fatalf("signin: %+v %q %v", user, token, err)
	}

	token, err = r.Refresh(ctx)
	if err != nil || token != "a2" {
		t.Fatalf("refresh: %q %v", token, err)
	}

	if err := r.Signout(ctx); err != nil {
		t.Fatalf("signout: %v", err)
	}
	if _, err := r.Refresh(ctx); !errors.As(err, &se) {
		t.Fatalf("refresh after signout: %v", err)
	}
}

func TestHTTPRefresherNeedsJar(t *testing.T) {
	if _, err := NewHTTPRefresher("http://localhost", &http.Client{}); err == nil {
		t.Fatal("expected error for client without jar")
	}
}
