package stores

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newOTPStoreTest(t *testing.T) (*OTPStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewOTPStore(rdb, "otp"), mr
}

func seed(t *testing.T, s *OTPStore, email, code string, now time.Time) {
	t.Helper()
	rec := OTPRecord{CodeHash: sha256.Sum256([]byte(code)), ExpiresAt: now.Add(5 * time.Minute)}
	if err := s.Save(context.Background(), email, rec, 10*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestConsumeMatchDeletes(t *testing.T) {
	s, _ := newOTPStoreTest(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	seed(t, s, "a@x.com", "123456", now)

	outcome, _, err := s.Consume(ctx, "a@x.com", sha256.Sum256([]byte("123456")), 5, now)
	if err != nil || outcome != OutcomeMatch {
		t.Fatalf("consume: outcome=%v err=%v", outcome, err)
	}
	outcome, _, err = s.Consume(ctx, "a@x.com", sha256.Sum256([]byte("123456")), 5, now)
	if err != nil || outcome != OutcomeNoRecord {
		t.Fatalf("second consume: outcome=%v err=%v", outcome, err)
	}
}

func TestConsumeMismatchCountsToCeiling(t *testing.T) {
	s, mr := newOTPStoreTest(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	seed(t, s, "b@x.com", "123456", now)
	wrong := sha256.Sum256([]byte("000000"))

	for i := 1; i <= 4; i++ {
		outcome, attempts, err := s.Consume(ctx, "b@x.com", wrong, 5, now)
		if err != nil || outcome != OutcomeMismatch || attempts != i {
			t.Fatalf("attempt %d: outcome=%v attempts=%d err=%v", i, outcome, attempts, err)
		}
	}

	if got := mr.HGet("otp:b@x.com", fieldAttempts); got != "4" {
		t.Fatalf("stored attempts = %q", got)
	}

	outcome, attempts, err := s.Consume(ctx, "b@x.com", wrong, 5, now)
	if err != nil || outcome != OutcomeExhausted || attempts != 5 {
		t.Fatalf("fifth: outcome=%v attempts=%d err=%v", outcome, attempts, err)
	}
	if mr.Exists("otp:b@x.com") {
		t.Fatal("record must be deleted at the ceiling")
	}
}

func TestConsumeExpired(t *testing.T) {
	s, mr := newOTPStoreTest(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	seed(t, s, "c@x.com", "123456", now)

	later := now.Add(5*time.Minute + time.Millisecond)
	outcome, _, err := s.Consume(ctx, "c@x.com", sha256.Sum256([]byte("123456")), 5, later)
	if err != nil || outcome != OutcomeExpired {
		t.Fatalf("consume: outcome=%v err=%v", outcome, err)
	}
	if mr.Exists("otp:c@x.com") {
		t.Fatal("expired record must be deleted")
	}
}

func TestSaveOverwritesAndResetsAttempts(t *testing.T) {
	s, mr := newOTPStoreTest(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	seed(t, s, "d@x.com", "111111", now)

	if _, _, err := s.Consume(ctx, "d@x.com", sha256.Sum256([]byte("999999")), 5, now); err != nil {
		t.Fatalf("consume: %v", err)
	}
	seed(t, s, "d@x.com", "222222", now)

	want := sha256.Sum256([]byte("222222"))
	if got := mr.HGet("otp:d@x.com", fieldAttempts); got != "0" {
		t.Fatalf("attempts after overwrite = %q", got)
	}
	if got := mr.HGet("otp:d@x.com", fieldCodeHash); got != string(want[:]) {
		t.Fatal("code hash not replaced")
	}
	if ttl := mr.TTL("otp:d@x.com"); ttl != 10*time.Minute {
		t.Fatalf("retention = %v", ttl)
	}

	outcome, _, _ := s.Consume(ctx, "d@x.com", sha256.Sum256([]byte("111111")), 5, now)
	if outcome != OutcomeMismatch {
		t.Fatalf("old code must not match, got %v", outcome)
	}
}

func TestConcurrentWrongGuessesNeverOvershoot(t *testing.T) {
	s, _ := newOTPStoreTest(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	seed(t, s, "e@x.com", "123456", now)
	wrong := sha256.Sum256([]byte("000000"))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[Outcome]int{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, _, err := s.Consume(ctx, "e@x.com", wrong, 5, now)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			mu.Lock()
			counts[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counts[OutcomeMismatch] != 4 || counts[OutcomeExhausted] != 1 || counts[OutcomeNoRecord] != 15 {
		t.Fatalf("unexpected outcome distribution: %v", counts)
	}
}
