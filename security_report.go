package contestauth

import (
	"net/http"
	"time"
)

// SecurityReport summarizes the effective security posture of an Engine.
// Gaps that are deliberately left open are reported as false rather than
// hidden.
type SecurityReport struct {
	ProductionMode          bool
	SigningAlgorithm        string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	Argon2                  PasswordConfigReport
	OTPDigits               int
	OTPTTL                  time.Duration
	OTPMaxAttempts          int
	OTPAtomicConsume        bool
	OTPDevCodeExposed       bool
	RefreshCookieSecure     bool
	RefreshCookieSameSite   string
	RefreshRotationEnabled  bool
	RefreshRevocationActive bool
	RateLimitingActive      bool
	AuditEnabled            bool
}

// PasswordConfigReport mirrors the argon2id parameters in use.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	sameSite := "default"
	switch e.config.Cookie.SameSite {
	case http.SameSiteLaxMode:
		sameSite = "lax"
	case http.SameSiteStrictMode:
		sameSite = "strict"
	case http.SameSiteNoneMode:
		sameSite = "none"
	}

	return SecurityReport{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		OTPDigits:               e.config.OTP.Digits,
		OTPTTL:                  e.config.OTP.TTL,
		OTPMaxAttempts:          e.config.OTP.MaxAttempts,
		OTPAtomicConsume:        isRedisOTPStore(e.otpStore),
		OTPDevCodeExposed:       e.exposeDevCode(),
		RefreshCookieSecure:     e.config.CookieSecure(),
		RefreshCookieSameSite:   sameSite,
		RefreshRotationEnabled:  false,
		RefreshRevocationActive: false,
		RateLimitingActive:      e.rateLimiter != nil,
		AuditEnabled:            e.audit != nil,
	}
}

func isRedisOTPStore(s OTPStore) bool {
	_, ok := s.(*redisOTPStore)
	return ok
}
