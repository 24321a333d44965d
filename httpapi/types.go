package httpapi

import "github.com/code100x/contestauth"

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	NextStep  string `json:"nextStep"`
	ExpiresIn int    `json:"expiresIn"`
	DevCode   string `json:"devCode,omitempty"`
}

type verifyOTPRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Password string `json:"password"`
}

type resendOTPRequest struct {
	Email string `json:"email"`
}

type resendOTPResponse struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	ExpiresIn int    `json:"expiresIn"`
	DevCode   string `json:"devCode,omitempty"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string                 `json:"accessToken"`
	User        contestauth.PublicUser `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type meResponse struct {
	User contestauth.PublicUser `json:"user"`
}

type adminPingResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}
