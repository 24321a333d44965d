package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/code100x/contestauth"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind contestauth.Kind) int {
	switch kind {
	case contestauth.KindValidation:
		return http.StatusBadRequest
	case contestauth.KindNotFound:
		return http.StatusNotFound
	case contestauth.KindConflict:
		return http.StatusConflict
	case contestauth.KindExpired:
		return http.StatusGone
	case contestauth.KindRateLimited:
		return http.StatusTooManyRequests
	case contestauth.KindUnauthorized:
		return http.StatusUnauthorized
	case contestauth.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and body. Internal errors are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := contestauth.KindOf(err)
	status := statusFor(kind)

	body := errorResponse{Error: kind.String(), Message: err.Error()}
	if kind == contestauth.KindInternal {
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Message = "internal server error"
	}
	if n, ok := contestauth.RemainingAttempts(err); ok {
		body.Remaining = &n
	}
	writeJSON(w, status, body)
}

var errBadJSON = errors.New("malformed JSON body")

// decodeJSON reads a single JSON object of at most maxBodyBytes and rejects
// unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", contestauth.ErrValidation, maxBodyBytes)
		}
		return fmt.Errorf("%w: %v: %v", contestauth.ErrValidation, errBadJSON, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: %v: trailing data", contestauth.ErrValidation, errBadJSON)
	}
	return nil
}

// requireFields takes name, value pairs and reports the first empty value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s is required", contestauth.ErrValidation, pairs[i])
		}
	}
	return nil
}

// requestContext attaches client IP and user agent for throttling and audit.
func requestContext(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx := contestauth.WithClientIP(r.Context(), host)
	return contestauth.WithUserAgent(ctx, r.UserAgent())
}
