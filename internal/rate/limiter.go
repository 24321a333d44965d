package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	MaxOTPRequests        int
	OTPRequestWindow      time.Duration
}

// hitScript increments a fixed-window counter and starts the window on the
// first hit, in one round trip.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// budget is one fixed-window counter family, keyed by a subject such as an
// email or an IP address.
type budget struct {
	prefix string
	limit  int
	window time.Duration
}

func (b budget) key(subject string) string { return b.prefix + subject }

// Limiter enforces per-email and per-IP budgets for failed signins and code
// requests using Redis counters.
type Limiter struct {
	redis   redis.UniversalClient
	perIP   bool
	login   budget
	loginIP budget
	codes   budget
	codesIP budget
}

func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:   redisClient,
		perIP:   cfg.EnableIPThrottle,
		login:   budget{prefix: "rl:login:", limit: cfg.MaxLoginAttempts, window: cfg.LoginCooldownDuration},
		loginIP: budget{prefix: "rl:login-ip:", limit: cfg.MaxLoginAttempts, window: cfg.LoginCooldownDuration},
		codes:   budget{prefix: "rl:otp:", limit: cfg.MaxOTPRequests, window: cfg.OTPRequestWindow},
		codesIP: budget{prefix: "rl:otp-ip:", limit: cfg.MaxOTPRequests, window: cfg.OTPRequestWindow},
	}
}

// subjects pairs each budget with its key subject; the IP budget is skipped
// when throttling by IP is off or the address is unknown.
func (l *Limiter) subjects(email, ip string, byEmail, byIP budget) map[string]budget {
	out := map[string]budget{byEmail.key(email): byEmail}
	if l.perIP && ip != "" {
		out[byIP.key(ip)] = byIP
	}
	return out
}

// CheckLogin returns ErrRateLimited once the email or the IP has used up its
// failed signin budget. The current attempt is not counted.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	for key, b := range l.subjects(email, ip, l.login, l.loginIP) {
		n, err := l.count(ctx, key)
		if err != nil {
			return err
		}
		if n >= int64(b.limit) {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin records a failed signin.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	for key, b := range l.subjects(email, ip, l.login, l.loginIP) {
		if _, err := l.hit(ctx, key, b.window); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the failed signin counters after a successful signin.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	var keys []string
	for key := range l.subjects(email, ip, l.login, l.loginIP) {
		keys = append(keys, key)
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckOTPRequest counts one code request against the email and IP budgets
// and returns ErrRateLimited once either is spent.
func (l *Limiter) CheckOTPRequest(ctx context.Context, email, ip string) error {
	limited := false
	for key, b := range l.subjects(email, ip, l.codes, l.codesIP) {
		n, err := l.hit(ctx, key, b.window)
		if err != nil {
			return err
		}
		if n > int64(b.limit) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) count(ctx context.Context, key string) (int64, error) {
	n, err := l.redis.Get(ctx, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	case n < 0:
		return 0, nil
	}
	return n, nil
}

func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := hitScript.Run(ctx, l.redis, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}
