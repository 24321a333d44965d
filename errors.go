package contestauth

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed input. Callers usually receive it
	// wrapped with the offending field.
	ErrValidation = errors.New("validation failed")
	// ErrUserExists is returned by signup and resend when the email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned by signin for any unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when an email or IP exceeded the signin budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrOTPNotFound is returned when no outstanding code exists for the email.
	ErrOTPNotFound = errors.New("otp not found")
	// ErrUserNotFound is returned by [Engine.GetUser] for an unknown id.
	ErrUserNotFound = errors.New("user not found")
	// ErrOTPExpired is returned when the outstanding code is past its expiry.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPTooManyAttempts is returned when the attempt ceiling was reached.
	ErrOTPTooManyAttempts = errors.New("otp attempts exceeded")
	// ErrOTPInvalidCode is returned (wrapped in [InvalidCodeError]) for a wrong code.
	ErrOTPInvalidCode = errors.New("invalid otp code")
	// ErrOTPRateLimited is returned when code requests exceed the issue budget.
	ErrOTPRateLimited = errors.New("otp request rate limited")
	// ErrRefreshMissing is returned when no refresh token was presented.
	ErrRefreshMissing = errors.New("refresh token missing")
	// ErrRefreshInvalid is returned when the refresh token fails signature, type or expiry checks.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrTokenInvalid is returned when an access token fails validation.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrPermissionDenied is returned when a valid token lacks the required role.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrBackendUnavailable is returned when Redis or the user store failed.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned when an Engine was not built through [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
)

// InvalidCodeError reports a wrong code together with the guesses left.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid otp code (remaining %d)", e.Remaining)
}

// Is lets errors.Is(err, ErrOTPInvalidCode) match.
func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrOTPInvalidCode
}

// RemainingAttempts extracts the guesses left from a wrong-code error.
func RemainingAttempts(err error) (int, bool) {
	var ice *InvalidCodeError
	if errors.As(err, &ice) {
		return ice.Remaining, true
	}
	return 0, false
}

func validationError(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}

// Kind classifies errors for the transport boundary.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindExpired
	KindRateLimited
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindExpired:
		return "Expired"
	case KindRateLimited:
		return "RateLimited"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	default:
		return "Internal"
	}
}

// KindOf maps any engine error to its taxonomy bucket. Unknown errors are Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrOTPNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrUserExists):
		return KindConflict
	case errors.Is(err, ErrOTPExpired):
		return KindExpired
	case errors.Is(err, ErrOTPTooManyAttempts),
		errors.Is(err, ErrOTPRateLimited),
		errors.Is(err, ErrLoginRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrOTPInvalidCode),
		errors.Is(err, ErrRefreshMissing),
		errors.Is(err, ErrTokenInvalid):
		return KindUnauthorized
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrPermissionDenied):
		return KindForbidden
	default:
		return KindInternal
	}
}
