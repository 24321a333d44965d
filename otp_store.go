package contestauth

import (
	"context"
	"time"

	"github.com/code100x/contestauth/internal/stores"
	"github.com/redis/go-redis/v9"
)

// redisOTPStore adapts the internal Redis store to [OTPStore].
type redisOTPStore struct {
	store *stores.OTPStore
}

// NewRedisOTPStore returns the Redis-backed [OTPStore]. Keys are
// "<prefix>:<email>" hashes.
func NewRedisOTPStore(client redis.UniversalClient, prefix string) OTPStore {
	return &redisOTPStore{store: stores.NewOTPStore(client, prefix)}
}

func (s *redisOTPStore) Save(ctx context.Context, email string, record OTPRecord, retention time.Duration) error {
	return s.store.Save(ctx, email, stores.OTPRecord{
		CodeHash:  record.CodeHash,
		ExpiresAt: record.ExpiresAt,
		Attempts:  record.Attempts,
	}, retention)
}

func (s *redisOTPStore) Consume(
	ctx context.Context,
	email string,
	codeHash [32]byte,
	maxAttempts int,
	now time.Time,
) (OTPConsumeResult, error) {
	outcome, attempts, err := s.store.Consume(ctx, email, codeHash, maxAttempts, now)
	if err != nil {
		return OTPConsumeResult{}, err
	}
	return OTPConsumeResult{Outcome: outcomeFromStore(outcome), Attempts: attempts}, nil
}

func outcomeFromStore(o stores.Outcome) VerifyOutcome {
	switch o {
	case stores.OutcomeExpired:
		return OutcomeExpired
	case stores.OutcomeExhausted:
		return OutcomeExhausted
	case stores.OutcomeMismatch:
		return OutcomeMismatch
	case stores.OutcomeMatch:
		return OutcomeMatch
	default:
		return OutcomeNoRecord
	}
}
