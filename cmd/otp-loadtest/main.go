// Command otp-loadtest hammers the OTP engine with concurrent guesses and
// checks that the attempt ceiling and single use of codes hold under
// contention. It exits non-zero on any violation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/code100x/contestauth"
	"github.com/code100x/contestauth/memstore"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		emails      = flag.Int("emails", 2000, "number of addresses to issue codes for")
		guessers    = flag.Int("guessers", 16, "concurrent wrong guesses per address")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		attempts    = flag.Int("max-attempts", 5, "OTP attempt ceiling")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *emails <= 0 || *guessers <= 0 || *concurrency <= 0 || *attempts <= 0 {
		fmt.Fprintln(os.Stderr, "emails, guessers, concurrency and max-attempts must be > 0")
		os.Exit(2)
	}

	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := newEngine(client, *attempts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	lt := &loadTest{engine: engine, maxAttempts: *attempts, concurrency: *concurrency}

	issueStats, codes := lt.issuePhase(ctx, addresses("guess", *emails))
	guessStats := lt.guessPhase(ctx, codes, *guessers)
	_, codes = lt.issuePhase(ctx, addresses("race", *emails))
	raceStats := lt.racePhase(ctx, codes, *guessers)

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("wrong-guess", guessStats)
	printStats("correct-race", raceStats)

	if n := lt.violations.Load(); n > 0 {
		fmt.Printf("FAIL: %d violations\n", n)
		os.Exit(1)
	}
	fmt.Println("OK: attempt ceiling and single use held")
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func newEngine(client redis.UniversalClient, maxAttempts int) (*contestauth.Engine, error) {
	cfg := contestauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("otp-loadtest-signing-key-0123456789")
	cfg.OTP.MaxAttempts = maxAttempts
	cfg.OTP.ExposeDevCode = true
	cfg.OTP.RequestMaxPerWindow = 1 << 20
	cfg.Metrics.Enabled = true

	return contestauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(memstore.NewUsers()).
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))).
		Build()
}

type loadTest struct {
	engine      *contestauth.Engine
	maxAttempts int
	concurrency int
	violations  atomic.Int64
}

type issued struct {
	email string
	code  string
}

func (lt *loadTest) violation(format string, args ...any) {
	lt.violations.Add(1)
	fmt.Fprintf(os.Stderr, "violation: "+format+"\n", args...)
}

// forEach runs fn for every index in [0,n) on lt.concurrency workers and
// records each call's latency.
func (lt *loadTest) forEach(n int, fn func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, n)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < lt.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				t0 := time.Now()
				err := fn(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func (lt *loadTest) issuePhase(ctx context.Context, emails []string) (phaseStats, []issued) {
	out := make([]issued, len(emails))
	stats := lt.forEach(len(emails), func(i int) error {
		issue, err := lt.engine.IssueOTP(ctx, emails[i])
		if err != nil {
			return err
		}
		out[i] = issued{email: issue.Email, code: issue.DevCode}
		return nil
	})
	if stats.failures > 0 {
		lt.violation("%d issue calls failed", stats.failures)
	}
	return stats, out
}

type guessTally struct {
	mismatch  atomic.Int64
	exhausted atomic.Int64
	notFound  atomic.Int64
	matched   atomic.Int64
	other     atomic.Int64
}

// guessPhase fires guessers wrong codes at every address at once. At most
// maxAttempts-1 may be reported as mismatches, exactly one as exhausted, and
// the real code must be dead afterwards.
func (lt *loadTest) guessPhase(ctx context.Context, codes []issued, guessers int) phaseStats {
	tallies := make([]guessTally, len(codes))
	stats := lt.forEach(len(codes)*guessers, func(i int) error {
		idx := i / guessers
		t := &tallies[idx]
		_, err := lt.engine.VerifyOTP(ctx, codes[idx].email, wrongCode(codes[idx].code))

		var invalid *contestauth.InvalidCodeError
		switch {
		case err == nil:
			t.matched.Add(1)
		case errors.As(err, &invalid):
			t.mismatch.Add(1)
			return nil
		case errors.Is(err, contestauth.ErrOTPTooManyAttempts):
			t.exhausted.Add(1)
			return nil
		case errors.Is(err, contestauth.ErrOTPNotFound):
			t.notFound.Add(1)
			return nil
		default:
			t.other.Add(1)
		}
		return err
	})

	for i := range tallies {
		t := &tallies[i]
		email := codes[i].email
		wantMismatch := int64(lt.maxAttempts - 1)
		if int64(guessers) < int64(lt.maxAttempts) {
			wantMismatch = int64(guessers)
		}
		if got := t.mismatch.Load(); got != wantMismatch {
			lt.violation("%s: %d mismatches, want %d", email, got, wantMismatch)
		}
		if guessers >= lt.maxAttempts && t.exhausted.Load() != 1 {
			lt.violation("%s: exhausted reported %d times", email, t.exhausted.Load())
		}
		if t.matched.Load() > 0 || t.other.Load() > 0 {
			lt.violation("%s: %d wrong codes accepted, %d errors", email, t.matched.Load(), t.other.Load())
		}
		if guessers >= lt.maxAttempts {
			if _, err := lt.engine.VerifyOTP(ctx, email, codes[i].code); !errors.Is(err, contestauth.ErrOTPNotFound) {
				lt.violation("%s: correct code after lockout returned %v", email, err)
			}
		}
	}
	return stats
}

// racePhase submits the correct code from guessers goroutines at once; only
// one may succeed.
func (lt *loadTest) racePhase(ctx context.Context, codes []issued, guessers int) phaseStats {
	wins := make([]atomic.Int64, len(codes))
	stats := lt.forEach(len(codes)*guessers, func(i int) error {
		idx := i / guessers
		_, err := lt.engine.VerifyOTP(ctx, codes[idx].email, codes[idx].code)
		switch {
		case err == nil:
			wins[idx].Add(1)
			return nil
		case errors.Is(err, contestauth.ErrOTPNotFound):
			return nil
		default:
			return err
		}
	})
	for i := range wins {
		if n := wins[i].Load(); n != 1 {
			lt.violation("%s: code accepted %d times", codes[i].email, n)
		}
	}
	if stats.failures > 0 {
		lt.violation("%d race verifications failed unexpectedly", stats.failures)
	}
	return stats
}

func addresses(tag string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d@loadtest.local", tag, i)
	}
	return out
}

// wrongCode returns a code of the same length that differs in the first digit.
func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
