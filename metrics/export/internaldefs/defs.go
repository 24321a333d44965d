package internaldefs

import (
	"github.com/code100x/contestauth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   contestauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   contestauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to a full buffer.
const (
	AuditDroppedName = "contestauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: contestauth.MetricOTPIssued, Name: "contestauth_otp_issued_total", Help: "Verification codes issued."},
	{ID: contestauth.MetricOTPDeliveryFailed, Name: "contestauth_otp_delivery_failed_total", Help: "Verification codes that could not be mailed."},
	{ID: contestauth.MetricOTPVerifySuccess, Name: "contestauth_otp_verify_success_total", Help: "Codes verified successfully."},
	{ID: contestauth.MetricOTPVerifyMismatch, Name: "contestauth_otp_verify_mismatch_total", Help: "Wrong codes submitted."},
	{ID: contestauth.MetricOTPVerifyExpired, Name: "contestauth_otp_verify_expired_total", Help: "Codes submitted after expiry."},
	{ID: contestauth.MetricOTPVerifyNotFound, Name: "contestauth_otp_verify_not_found_total", Help: "Verifications with no pending code."},
	{ID: contestauth.MetricOTPAttemptsExceeded, Name: "contestauth_otp_attempts_exceeded_total", Help: "Codes invalidated by the attempt ceiling."},
	{ID: contestauth.MetricSignupSuccess, Name: "contestauth_signup_success_total", Help: "Accounts created."},
	{ID: contestauth.MetricSignupDuplicate, Name: "contestauth_signup_duplicate_total", Help: "Signups rejected for an existing email."},
	{ID: contestauth.MetricLoginSuccess, Name: "contestauth_login_success_total", Help: "Successful sign-ins."},
	{ID: contestauth.MetricLoginFailure, Name: "contestauth_login_failure_total", Help: "Failed sign-ins."},
	{ID: contestauth.MetricLoginRateLimited, Name: "contestauth_login_rate_limited_total", Help: "Sign-ins refused by the rate limiter."},
	{ID: contestauth.MetricRefreshSuccess, Name: "contestauth_refresh_success_total", Help: "Access tokens renewed."},
	{ID: contestauth.MetricRefreshFailure, Name: "contestauth_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: contestauth.MetricSignout, Name: "contestauth_signout_total", Help: "Sign-outs."},
	{ID: contestauth.MetricRateLimitHit, Name: "contestauth_rate_limit_hit_total", Help: "Requests denied by any rate limiter."},
}

var HistogramDefs = []HistogramDef{
	{ID: contestauth.MetricValidateLatency, Name: "contestauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds in seconds of every bucket except the
// last, which is unbounded.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish one instrument per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
