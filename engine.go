package contestauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/code100x/contestauth/internal/rate"
	"github.com/code100x/contestauth/jwt"
	"github.com/code100x/contestauth/password"
)

// Engine owns the server half of the session lifecycle: OTP issuance and
// verification, account creation, signin and token minting. Build one with
// [Builder]; all methods are safe for concurrent use.
type Engine struct {
	config       Config
	userStore    UserStore
	otpStore     OTPStore
	mailer       Mailer
	rateLimiter  *rate.Limiter
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	audit        *auditDispatcher
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time

	// dummyHash is verified against when the email is unknown so signin
	// takes the same time whether or not the account exists.
	dummyHash string
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) ready() error {
	if e == nil || e.userStore == nil || e.otpStore == nil || e.jwtManager == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

func (e *Engine) exposeDevCode() bool {
	return e.config.OTP.ExposeDevCode && !e.config.Security.ProductionMode
}

// NormalizeEmail trims and lowercases an address. Records are keyed by the
// normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email", "is required")
	}
	if len(email) > 254 {
		return validationError("email", "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return validationError("email", "is not a valid address")
	}
	return nil
}

func (e *Engine) validatePassword(pw string) error {
	if len(pw) < e.config.Password.MinLength {
		return validationError("password", fmt.Sprintf("must be at least %d characters", e.config.Password.MinLength))
	}
	if len(pw) > e.config.Password.MaxLength {
		return validationError("password", "is too long")
	}
	return nil
}

// storeErr converts a user store failure into the engine taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreDuplicateEmail):
		return ErrUserExists
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

func rateErr(err error, limited error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return limited
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// userExists reports whether email is registered. Lookup failures other than
// not-found are returned.
func (e *Engine) userExists(ctx context.Context, email string) (bool, error) {
	_, err := e.userStore.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrStoreUserNotFound):
		return false, nil
	default:
		return false, storeErr(err)
	}
}
