package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/code100x/contestauth"
	"github.com/code100x/contestauth/middleware"
)

const nextStepVerifyOTP = "verify-otp"

type handler struct {
	engine *contestauth.Engine
	cfg    contestauth.Config
	logger *slog.Logger
}

// POST /signup {email, password}
func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := requireFields("email", req.Email, "password", req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	issue, err := h.engine.Signup(requestContext(r), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, signupResponse{
		Message:   "OTP sent to your email",
		Email:     issue.Email,
		NextStep:  nextStepVerifyOTP,
		ExpiresIn: issue.TTLSeconds(),
		DevCode:   issue.DevCode,
	})
}

// POST /verify-otp {email, otp, password}
func (h *handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := requireFields("email", req.Email, "otp", req.OTP, "password", req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.engine.CompleteSignup(requestContext(r), req.Email, req.OTP, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	setRefreshCookie(w, h.cfg, res.Tokens.RefreshToken)
	writeJSON(w, http.StatusCreated, authResponse{
		AccessToken: res.Tokens.AccessToken,
		User:        res.User,
	})
}

// POST /resend-otp {email}
func (h *handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := requireFields("email", req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	issue, err := h.engine.ResendOTP(requestContext(r), req.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resendOTPResponse{
		Message:   "A new OTP has been sent",
		Email:     issue.Email,
		ExpiresIn: issue.TTLSeconds(),
		DevCode:   issue.DevCode,
	})
}

// POST /signin {email, password}
func (h *handler) signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := requireFields("email", req.Email, "password", req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.engine.Signin(requestContext(r), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	setRefreshCookie(w, h.cfg, res.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken: res.Tokens.AccessToken,
		User:        res.User,
	})
}

// POST /refresh, reads the refresh cookie.
func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Refresh(requestContext(r), readRefreshCookie(r, h.cfg))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: res.AccessToken})
}

// POST /signout always succeeds and clears the cookie.
func (h *handler) signout(w http.ResponseWriter, r *http.Request) {
	h.engine.Signout(requestContext(r), readRefreshCookie(r, h.cfg))
	clearRefreshCookie(w, h.cfg)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Signed out successfully"})
}

// GET /me, behind RequireAuth.
func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, contestauth.ErrTokenInvalid)
		return
	}
	user, err := h.engine.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: user})
}

// GET /admin/ping, behind RequireAdmin.
func (h *handler) adminPing(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, adminPingResponse{Message: "pong", UserID: claims.UserID})
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Health Check!"})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: contestauth.KindNotFound.String(), Message: "route not found"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "MethodNotAllowed"})
}
