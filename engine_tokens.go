package contestauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/code100x/contestauth/jwt"
)

func (e *Engine) issueTokenPair(user User) (TokenPair, error) {
	access, accessExp, err := e.jwtManager.CreateAccess(user.ID, string(user.Role))
	if err != nil {
		return TokenPair{}, fmt.Errorf("mint access token: %w", err)
	}
	refresh, refreshExp, err := e.jwtManager.CreateRefresh(user.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("mint refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// itself is neither rotated nor recorded, so it stays usable until it
// expires. The role is read from the user store when available; a failed
// lookup falls back to RoleUser rather than failing the renewal.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	if err := e.ready(); err != nil {
		return RefreshResult{}, err
	}
	if refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		return RefreshResult{}, ErrRefreshMissing
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, auditFields{}, ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(err)}
		})
		return RefreshResult{}, ErrRefreshInvalid
	}

	role := RoleUser
	if user, err := e.userStore.GetUserByID(ctx, claims.Subject); err == nil {
		role = user.Role
	} else {
		e.log().Warn("refresh role lookup failed; using default role", "user_id", claims.Subject, "error", err)
	}

	access, exp, err := e.jwtManager.CreateAccess(claims.Subject, string(role))
	if err != nil {
		return RefreshResult{}, fmt.Errorf("mint access token: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, auditFields{userID: claims.Subject, tokenID: claims.ID}, nil, nil)
	return RefreshResult{
		UserID:          claims.Subject,
		Role:            role,
		AccessToken:     access,
		AccessExpiresAt: exp,
	}, nil
}

func refreshFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrWrongTokenType):
		return "wrong_type"
	case jwt.IsExpired(err):
		return "expired"
	default:
		return "invalid"
	}
}

// ValidateAccess verifies an access token and returns its claims. It does
// not touch any store.
func (e *Engine) ValidateAccess(token string) (AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return AccessClaims{}, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.jwtManager.ParseAccess(token)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	if err != nil {
		return AccessClaims{}, ErrTokenInvalid
	}
	role := Role(claims.Role)
	if !role.Valid() {
		return AccessClaims{}, ErrTokenInvalid
	}

	return AccessClaims{
		UserID:    claims.Subject,
		Role:      role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Signout records the end of a session. There is no server-side revocation:
// the caller clears the refresh cookie and the token stays valid until it
// expires if a copy was kept elsewhere.
func (e *Engine) Signout(ctx context.Context, refreshToken string) {
	if e == nil {
		return
	}
	fields := auditFields{}
	if refreshToken != "" && e.jwtManager != nil {
		if claims, err := e.jwtManager.ParseRefresh(refreshToken); err == nil {
			fields.userID, fields.tokenID = claims.Subject, claims.ID
		}
	}
	e.metricInc(MetricSignout)
	e.emitAudit(ctx, auditEventSignout, true, fields, nil, nil)
}
