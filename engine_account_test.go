package contestauth

import (
	"context"
	"errors"
	"testing"

	"github.com/code100x/contestauth/password"
)

func signupUser(t *testing.T, env *testEnv, email, pw string) AuthResult {
	t.Helper()
	ctx := context.Background()
	if _, err := env.engine.Signup(ctx, email, pw); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	res, err := env.engine.CompleteSignup(ctx, email, env.mailer.code(NormalizeEmail(email)), pw)
	if err != nil {
		t.Fatalf("CompleteSignup: %v", err)
	}
	return res
}

func TestSignupFlowCreatesUserAndTokens(t *testing.T) {
	env := newTestEnv(t, nil)

	res := signupUser(t, env, "New@X.com", "secret1")
	if res.User.Email != "new@x.com" || res.User.Role != RoleUser || res.User.ID == "" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if got := res.Tokens.AccessExpiresAt.Sub(env.clock.Now()); got != testConfig().JWT.AccessTTL {
		t.Fatalf("access ttl = %v", got)
	}

	claims, err := env.engine.ValidateAccess(res.Tokens.AccessToken)
	if err != nil || claims.UserID != res.User.ID || claims.Role != RoleUser {
		t.Fatalf("ValidateAccess: %+v %v", claims, err)
	}

	stored, err := env.users.GetUserByEmail(context.Background(), "new@x.com")
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}
	if stored.PasswordHash == "secret1" || stored.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
}

func TestSignupRejectsDuplicateAndWeakPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	signupUser(t, env, "a@x.com", "secret1")

	if _, err := env.engine.Signup(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrUserExists) || KindOf(err) != KindConflict {
		t.Fatalf("duplicate signup: %v", err)
	}
	if _, err := env.engine.ResendOTP(ctx, "A@x.com"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("resend for registered email: %v", err)
	}
	if _, err := env.engine.Signup(ctx, "b@x.com", "12345"); KindOf(err) != KindValidation {
		t.Fatalf("short password: %v", err)
	}
	if _, err := env.engine.Signup(ctx, "b@", "secret1"); KindOf(err) != KindValidation {
		t.Fatalf("bad email: %v", err)
	}
}

func TestCompleteSignupWrongCodeCreatesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Signup(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	code := env.mailer.code("a@x.com")
	_, err := env.engine.CompleteSignup(ctx, "a@x.com", wrongCode(code), "secret1")
	if remaining, ok := RemainingAttempts(err); !ok || remaining != 4 {
		t.Fatalf("expected invalid code with 4 left, got %v", err)
	}
	if _, err := env.users.GetUserByEmail(ctx, "a@x.com"); !errors.Is(err, ErrStoreUserNotFound) {
		t.Fatal("no account may exist before a matching code")
	}
}

func TestCompleteSignupRaceLosesWithConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Signup(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	code := env.mailer.code("a@x.com")
	if _, err := env.users.CreateUser(ctx, User{ID: "other", Email: "a@x.com", Role: RoleUser}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := env.engine.CompleteSignup(ctx, "a@x.com", code, "secret1"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSigninSuccessAndFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	created := signupUser(t, env, "a@x.com", "secret1")

	res, err := env.engine.Signin(ctx, "A@X.COM", "secret1")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	if res.User.ID != created.User.ID {
		t.Fatalf("signed in as %+v", res.User)
	}
	if res.Tokens.AccessToken == created.Tokens.AccessToken {
		t.Fatal("each signin mints a new access token")
	}

	if _, err := env.engine.Signin(ctx, "a@x.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := env.engine.Signin(ctx, "ghost@x.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: %v", err)
	}
	if KindOf(ErrInvalidCredentials) != KindUnauthorized {
		t.Fatal("invalid credentials must map to unauthorized")
	}
}

func TestSigninLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Security.MaxLoginAttempts = 3 })
	ctx := context.Background()
	signupUser(t, env, "a@x.com", "secret1")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Signin(ctx, "a@x.com", "nope-nope"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := env.engine.Signin(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected lockout, got %v", err)
	}
}

func TestSigninUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	weak, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	hash, _ := weak.Hash("secret1")
	if _, err := env.users.CreateUser(ctx, User{ID: "u1", Email: "old@x.com", PasswordHash: hash, Role: RoleUser}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := env.engine.Signin(ctx, "old@x.com", "secret1"); err != nil {
		t.Fatalf("Signin: %v", err)
	}
	u, _ := env.users.GetUserByID(ctx, "u1")
	if u.PasswordHash == hash {
		t.Fatal("expected hash to be upgraded")
	}
	if _, err := env.engine.Signin(ctx, "old@x.com", "secret1"); err != nil {
		t.Fatalf("Signin after upgrade: %v", err)
	}
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	admin, err := env.engine.SeedAdmin(ctx, "root@x.com", "adminpass")
	if err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Fatalf("role = %s", admin.Role)
	}
	again, err := env.engine.SeedAdmin(ctx, "root@x.com", "different")
	if err != nil || again.ID != admin.ID {
		t.Fatalf("second seed: %+v %v", again, err)
	}

	res, err := env.engine.Signin(ctx, "root@x.com", "adminpass")
	if err != nil {
		t.Fatalf("admin signin: %v", err)
	}
	claims, err := env.engine.ValidateAccess(res.Tokens.AccessToken)
	if err != nil || claims.Role != RoleAdmin {
		t.Fatalf("admin claims: %+v %v", claims, err)
	}
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	res := signupUser(t, env, "me@x.com", "secret1")

	got, err := env.engine.GetUser(ctx, res.User.ID)
	if err != nil || got != res.User {
		t.Fatalf("GetUser: %+v %v", got, err)
	}
	if _, err := env.engine.GetUser(ctx, "missing"); !errors.Is(err, ErrUserNotFound) || KindOf(err) != KindNotFound {
		t.Fatalf("missing user: %v", err)
	}
}
