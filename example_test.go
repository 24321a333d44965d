package contestauth_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/code100x/contestauth"
	"github.com/code100x/contestauth/memstore"
	"github.com/redis/go-redis/v9"
)

func exampleEngine() (*contestauth.Engine, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := contestauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("example-signing-key-0123456789abcdef")
	cfg.OTP.ExposeDevCode = true

	engine, err := contestauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(memstore.NewUsers()).
		Build()
	if err != nil {
		panic(err)
	}
	return engine, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

// Signup issues a code; completing it with the code creates the user and
// returns a token pair.
func Example() {
	engine, done := exampleEngine()
	defer done()
	ctx := context.Background()

	issue, err := engine.Signup(ctx, "Alice@Example.com", "secret1")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(issue.Email, issue.TTLSeconds())

	res, err := engine.CompleteSignup(ctx, issue.Email, issue.DevCode, "secret1")
	if err != nil {
		fmt.Println(err)
		return
	}
	claims, err := engine.ValidateAccess(res.Tokens.AccessToken)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(res.User.Role, claims.UserID == res.User.ID)
	// Output:
	// alice@example.com 300
	// User true
}

func ExampleEngine_VerifyOTP() {
	engine, done := exampleEngine()
	defer done()
	ctx := context.Background()

	issue, err := engine.IssueOTP(ctx, "bob@example.com")
	if err != nil {
		fmt.Println(err)
		return
	}
	wrong := "000000"
	if issue.DevCode == wrong {
		wrong = "111111"
	}

	_, err = engine.VerifyOTP(ctx, issue.Email, wrong)
	var invalid *contestauth.InvalidCodeError
	if errors.As(err, &invalid) {
		fmt.Println("remaining:", invalid.Remaining, contestauth.KindOf(err))
	}

	_, err = engine.VerifyOTP(ctx, issue.Email, issue.DevCode)
	fmt.Println("verified:", err == nil)

	_, err = engine.VerifyOTP(ctx, issue.Email, issue.DevCode)
	fmt.Println("reused:", errors.Is(err, contestauth.ErrOTPNotFound))
	// Output:
	// remaining: 4 Unauthorized
	// verified: true
	// reused: true
}
