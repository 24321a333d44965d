package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/code100x/contestauth"
)

// StatusError is a non-2xx answer from the auth API.
type StatusError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth api: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("auth api: %d %s", e.StatusCode, e.Kind)
}

// HTTPRefresher talks to the auth API mounted at baseURL
// (for example "https://host/api/v1/user"). Its client carries a cookie jar
// that holds the refresh cookie between calls.
type HTTPRefresher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRefresher returns a refresher for baseURL. A nil client gets a fresh
// cookie jar and a 10 second timeout; a supplied client must have a Jar.
func NewHTTPRefresher(baseURL string, client *http.Client) (*HTTPRefresher, error) {
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	}
	if client.Jar == nil {
		return nil, fmt.Errorf("session: http client needs a cookie jar")
	}
	return &HTTPRefresher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

type authResponse struct {
	AccessToken string                 `json:"accessToken"`
	User        contestauth.PublicUser `json:"user"`
}

// Signin exchanges credentials for an access token. The refresh cookie lands
// in the jar.
func (r *HTTPRefresher) Signin(ctx context.Context, email, password string) (contestauth.PublicUser, string, error) {
	var out authResponse
	err := r.post(ctx, "/signin", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return contestauth.PublicUser{}, "", err
	}
	return out.User, out.AccessToken, nil
}

// VerifyOTP completes a signup. The refresh cookie lands in the jar.
func (r *HTTPRefresher) VerifyOTP(ctx context.Context, email, code, password string) (contestauth.PublicUser, string, error) {
	var out authResponse
	err := r.post(ctx, "/verify-otp", map[string]string{"email": email, "otp": code, "password": password}, &out)
	if err != nil {
		return contestauth.PublicUser{}, "", err
	}
	return out.User, out.AccessToken, nil
}

func (r *HTTPRefresher) Refresh(ctx context.Context) (string, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := r.post(ctx, "/refresh", nil, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("session: refresh response without access token")
	}
	return out.AccessToken, nil
}

func (r *HTTPRefresher) Signout(ctx context.Context) error {
	return r.post(ctx, "/signout", nil, nil)
}

func (r *HTTPRefresher) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		return &StatusError{StatusCode: resp.StatusCode, Kind: e.Error, Message: e.Message}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
