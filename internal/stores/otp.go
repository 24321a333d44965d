package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outcome is the state a consume call observed. The numeric values are
// shared with the Lua script below.
type Outcome int

const (
	OutcomeNoRecord  Outcome = 0
	OutcomeExpired   Outcome = 1
	OutcomeExhausted Outcome = 2
	OutcomeMismatch  Outcome = 3
	OutcomeMatch     Outcome = 4
)

var ErrOTPRedisUnavailable = errors.New("otp redis unavailable")

const (
	fieldCodeHash  = "code_hash"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// consumeOTPLua runs the whole verification step for one email.
// KEYS[1] = record key
// ARGV[1] = submitted code hash (32 raw bytes)
// ARGV[2] = max attempts
// ARGV[3] = now, unix milliseconds
//
// Returns {outcome, attempts}.
var consumeOTPLua = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'code_hash')
if not stored then
  return {0, 0}
end

local maxAttempts = tonumber(ARGV[2])
local nowMs = tonumber(ARGV[3])
local expiresAt = tonumber(redis.call('HGET', KEYS[1], 'expires_at')) or 0
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts')) or 0

if nowMs > expiresAt then
  redis.call('DEL', KEYS[1])
  return {1, attempts}
end

if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return {2, attempts}
end

if stored == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return {4, attempts}
end

attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return {2, attempts}
end
return {3, attempts}
`)

// OTPRecord is the stored form of one outstanding code.
type OTPRecord struct {
	CodeHash  [32]byte
	ExpiresAt time.Time
	Attempts  int
}

// OTPStore keeps at most one record per email in a Redis hash.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) key(email string) string {
	return s.prefix + ":" + email
}

// Save replaces any record for email. retention is the Redis key lifetime
// and should outlive ExpiresAt so a late verify still observes Expired.
func (s *OTPStore) Save(ctx context.Context, email string, record OTPRecord, retention time.Duration) error {
	key := s.key(email)

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldCodeHash, string(record.CodeHash[:]),
		fieldExpiresAt, record.ExpiresAt.UnixMilli(),
		fieldAttempts, record.Attempts,
	)
	pipe.PExpire(ctx, key, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Consume checks codeHash against the record for email and applies the
// resulting transition in one script call.
func (s *OTPStore) Consume(
	ctx context.Context,
	email string,
	codeHash [32]byte,
	maxAttempts int,
	now time.Time,
) (Outcome, int, error) {
	res, err := consumeOTPLua.Run(ctx, s.redis,
		[]string{s.key(email)},
		string(codeHash[:]),
		maxAttempts,
		now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return OutcomeNoRecord, 0, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if len(res) != 2 {
		return OutcomeNoRecord, 0, fmt.Errorf("%w: unexpected lua result", ErrOTPRedisUnavailable)
	}

	return Outcome(res[0]), int(res[1]), nil
}
