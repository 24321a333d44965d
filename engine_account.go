package contestauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PasswordHashUpdater is an optional [UserStore] extension. When present and
// PasswordConfig.UpgradeOnLogin is set, signin rewrites hashes made with
// weaker parameters.
type PasswordHashUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// Signup starts registration: it rejects registered emails and issues an OTP.
// The password is checked here so a bad one is reported before the user
// waits for a code; it is not stored until [Engine.CompleteSignup].
func (e *Engine) Signup(ctx context.Context, email, pw string) (OTPIssue, error) {
	if err := e.ready(); err != nil {
		return OTPIssue{}, err
	}
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return OTPIssue{}, err
	}
	if err := e.validatePassword(pw); err != nil {
		return OTPIssue{}, err
	}

	return e.issueForNewAccount(ctx, email)
}

// ResendOTP issues a replacement code for a pending signup. The previous code
// stops working immediately.
func (e *Engine) ResendOTP(ctx context.Context, email string) (OTPIssue, error) {
	if err := e.ready(); err != nil {
		return OTPIssue{}, err
	}
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return OTPIssue{}, err
	}

	return e.issueForNewAccount(ctx, email)
}

func (e *Engine) issueForNewAccount(ctx context.Context, email string) (OTPIssue, error) {
	exists, err := e.userExists(ctx, email)
	if err != nil {
		return OTPIssue{}, err
	}
	if exists {
		e.metricInc(MetricSignupDuplicate)
		e.emitAudit(ctx, auditEventSignupDuplicate, false, auditFields{email: email}, ErrUserExists, nil)
		return OTPIssue{}, ErrUserExists
	}
	return e.IssueOTP(ctx, email)
}

// CompleteSignup verifies code for email, creates the account with role User
// and signs it in. The OTP is consumed even when account creation then fails
// with ErrUserExists.
func (e *Engine) CompleteSignup(ctx context.Context, email, code, pw string) (AuthResult, error) {
	if err := e.ready(); err != nil {
		return AuthResult{}, err
	}
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return AuthResult{}, err
	}
	if err := e.validatePassword(pw); err != nil {
		return AuthResult{}, err
	}

	if _, err := e.VerifyOTP(ctx, email, code); err != nil {
		return AuthResult{}, err
	}

	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := e.userStore.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		CreatedAt:    e.clock().UTC(),
	})
	if err != nil {
		err = storeErr(err)
		if errors.Is(err, ErrUserExists) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupDuplicate, false, auditFields{email: email}, err, nil)
		}
		return AuthResult{}, err
	}

	pair, err := e.issueTokenPair(user)
	if err != nil {
		return AuthResult{}, err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupComplete, true, auditFields{userID: user.ID, email: email}, nil, nil)
	return AuthResult{User: user.Public(), Tokens: pair}, nil
}

// Signin checks email and password and returns a fresh token pair. Unknown
// emails and wrong passwords both return ErrInvalidCredentials after the
// same amount of hashing work.
func (e *Engine) Signin(ctx context.Context, email, pw string) (AuthResult, error) {
	if err := e.ready(); err != nil {
		return AuthResult{}, err
	}
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return AuthResult{}, err
	}
	if pw == "" {
		return AuthResult{}, validationError("password", "is required")
	}
	if len(pw) > e.config.Password.MaxLength {
		return AuthResult{}, ErrInvalidCredentials
	}

	ip := requestInfoFrom(ctx).IP
	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			err = rateErr(err, ErrLoginRateLimited)
			if errors.Is(err, ErrLoginRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitRateLimit(ctx, "login", email)
			}
			return AuthResult{}, err
		}
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrStoreUserNotFound) {
			return AuthResult{}, storeErr(err)
		}
		_, _ = e.passwordHash.Verify(pw, e.dummyHash)
		return AuthResult{}, e.loginFailed(ctx, email, "")
	}

	ok, err := e.passwordHash.Verify(pw, user.PasswordHash)
	if err != nil {
		e.log().Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		return AuthResult{}, e.loginFailed(ctx, email, user.ID)
	}
	if !ok {
		return AuthResult{}, e.loginFailed(ctx, email, user.ID)
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, email, ip); err != nil {
			e.log().Warn("reset login counter", "error", err)
		}
	}
	e.maybeUpgradeHash(ctx, user, pw)

	pair, err := e.issueTokenPair(user)
	if err != nil {
		return AuthResult{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, auditFields{userID: user.ID, email: email}, nil, nil)
	return AuthResult{User: user.Public(), Tokens: pair}, nil
}

func (e *Engine) loginFailed(ctx context.Context, email, userID string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, email, requestInfoFrom(ctx).IP); err != nil {
			e.log().Warn("increment login counter", "error", err)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, auditFields{userID: userID, email: email}, ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, user User, pw string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	updater, ok := e.userStore.(PasswordHashUpdater)
	if !ok {
		return
	}
	stale, err := e.passwordHash.NeedsUpgrade(user.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		return
	}
	if err := updater.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		e.log().Warn("password hash upgrade failed", "user_id", user.ID, "error", err)
	}
}

// SeedAdmin creates an Admin account when email is not yet registered. It is
// the only path that grants RoleAdmin and is meant for process startup. An
// existing account is returned unchanged.
func (e *Engine) SeedAdmin(ctx context.Context, email, pw string) (PublicUser, error) {
	if err := e.ready(); err != nil {
		return PublicUser{}, err
	}
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return PublicUser{}, err
	}

	existing, err := e.userStore.GetUserByEmail(ctx, email)
	if err == nil {
		if existing.Role != RoleAdmin {
			e.log().Warn("seed admin email belongs to a non-admin account", "user_id", existing.ID)
		}
		return existing.Public(), nil
	}
	if !errors.Is(err, ErrStoreUserNotFound) {
		return PublicUser{}, storeErr(err)
	}

	if err := e.validatePassword(pw); err != nil {
		return PublicUser{}, err
	}
	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		return PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := e.userStore.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		CreatedAt:    e.clock().UTC(),
	})
	if err != nil {
		return PublicUser{}, storeErr(err)
	}

	e.emitAudit(ctx, auditEventAdminSeeded, true, auditFields{userID: user.ID, email: email}, nil, nil)
	return user.Public(), nil
}

// GetUser returns the public profile of userID.
func (e *Engine) GetUser(ctx context.Context, userID string) (PublicUser, error) {
	if err := e.ready(); err != nil {
		return PublicUser{}, err
	}
	user, err := e.userStore.GetUserByID(ctx, userID)
	if errors.Is(err, ErrStoreUserNotFound) {
		return PublicUser{}, ErrUserNotFound
	}
	if err != nil {
		return PublicUser{}, storeErr(err)
	}
	return user.Public(), nil
}
