package contestauth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/code100x/contestauth/internal"
)

// otpRetentionFactor keeps the Redis key alive past the logical expiry so a
// late verify reports Expired rather than NotFound.
const otpRetentionFactor = 2

// IssueOTP generates a fresh code for email, replaces any outstanding record
// and hands the code to the mailer. Delivery failures are logged and do not
// fail the call; the user can request a resend.
func (e *Engine) IssueOTP(ctx context.Context, email string) (OTPIssue, error) {
	if err := e.ready(); err != nil {
		return OTPIssue{}, err
	}
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return OTPIssue{}, err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckOTPRequest(ctx, email, requestInfoFrom(ctx).IP); err != nil {
			err = rateErr(err, ErrOTPRateLimited)
			if KindOf(err) == KindRateLimited {
				e.emitRateLimit(ctx, "otp_request", email)
			}
			return OTPIssue{}, err
		}
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return OTPIssue{}, fmt.Errorf("generate otp: %w", err)
	}

	now := e.clock()
	ttl := e.config.OTP.TTL
	record := OTPRecord{
		CodeHash:  internal.HashOTP(code),
		ExpiresAt: now.Add(ttl),
		Attempts:  0,
	}
	if err := e.otpStore.Save(ctx, email, record, otpRetentionFactor*ttl); err != nil {
		return OTPIssue{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	issue := OTPIssue{
		Email:     email,
		TTL:       ttl,
		ExpiresAt: record.ExpiresAt,
	}

	switch {
	case e.mailer != nil:
		if err := e.mailer.SendCode(ctx, email, code); err != nil {
			e.metricInc(MetricOTPDeliveryFailed)
			e.log().Error("otp delivery failed", "email", email, "error", err)
			e.emitAudit(ctx, auditEventOTPDeliveryFailed, false, auditFields{email: email}, err, nil)
		}
	case !e.exposeDevCode():
		e.log().Warn("no mailer configured; otp not delivered", "email", email)
	}
	if e.exposeDevCode() {
		issue.DevCode = code
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, auditFields{email: email}, nil, func() map[string]string {
		return map[string]string{"ttl_seconds": strconv.Itoa(issue.TTLSeconds())}
	})
	return issue, nil
}

// VerifyOTP runs one step of the verification state machine for email.
//
// A match consumes the record. A wrong code increments the attempt counter
// and returns an [InvalidCodeError] carrying the guesses left; the guess that
// reaches the ceiling deletes the record and returns ErrOTPTooManyAttempts.
// An expired record is deleted and reported as ErrOTPExpired whatever the
// code.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) (VerifyResult, error) {
	if err := e.ready(); err != nil {
		return VerifyResult{}, err
	}
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return VerifyResult{}, err
	}
	if len(code) != e.config.OTP.Digits || !internal.IsNumeric(code) {
		return VerifyResult{}, validationError("otp", fmt.Sprintf("must be %d digits", e.config.OTP.Digits))
	}

	maxAttempts := e.config.OTP.MaxAttempts
	res, err := e.otpStore.Consume(ctx, email, internal.HashOTP(code), maxAttempts, e.clock())
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var (
		verr   error
		metric MetricID
	)
	switch res.Outcome {
	case OutcomeMatch:
		metric = MetricOTPVerifySuccess
	case OutcomeNoRecord:
		verr, metric = ErrOTPNotFound, MetricOTPVerifyNotFound
	case OutcomeExpired:
		verr, metric = ErrOTPExpired, MetricOTPVerifyExpired
	case OutcomeExhausted:
		verr, metric = ErrOTPTooManyAttempts, MetricOTPAttemptsExceeded
	case OutcomeMismatch:
		remaining := maxAttempts - res.Attempts
		if remaining < 0 {
			remaining = 0
		}
		verr, metric = &InvalidCodeError{Remaining: remaining}, MetricOTPVerifyMismatch
	default:
		return VerifyResult{}, fmt.Errorf("unknown otp outcome %d", res.Outcome)
	}

	e.metricInc(metric)
	if verr != nil {
		e.emitAudit(ctx, auditEventOTPRejected, false, auditFields{email: email}, verr, func() map[string]string {
			return map[string]string{
				"outcome":  res.Outcome.String(),
				"attempts": strconv.Itoa(res.Attempts),
			}
		})
		return VerifyResult{}, verr
	}

	e.emitAudit(ctx, auditEventOTPVerified, true, auditFields{email: email}, nil, nil)
	return VerifyResult{Email: email, Outcome: res.Outcome}, nil
}
