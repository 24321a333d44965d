package contestauth

import (
	"context"
	"errors"
	"time"
)

// Role is the authorization role carried by users and access tokens.
type Role string

const (
	// RoleUser is the default role granted to accounts created through OTP signup.
	RoleUser Role = "User"
	// RoleAdmin is granted only through [Engine.SeedAdmin].
	RoleAdmin Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the persisted account record.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// PublicUser is the subset of [User] that may leave the server.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Public strips credential material from u.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Role: u.Role}
}

// ErrStoreUserNotFound and ErrStoreDuplicateEmail are the errors a [UserStore]
// implementation must return (optionally wrapped) so the engine can classify
// lookups and inserts.
var (
	ErrStoreUserNotFound   = errors.New("store: user not found")
	ErrStoreDuplicateEmail = errors.New("store: duplicate email")
)

// UserStore is the narrow credential-store interface the engine consumes.
// Emails passed in are already normalized.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
}

// OTPRecord is one outstanding verification window for an email.
type OTPRecord struct {
	CodeHash  [32]byte
	ExpiresAt time.Time
	Attempts  int
}

// OTPConsumeResult reports the state a consume call observed.
type OTPConsumeResult struct {
	Outcome  VerifyOutcome
	Attempts int
}

// OTPStore persists OTP records keyed by email. Consume must read, compare,
// increment and delete as a single atomic step so concurrent wrong guesses
// can never push a record past maxAttempts.
type OTPStore interface {
	Save(ctx context.Context, email string, record OTPRecord, retention time.Duration) error
	Consume(ctx context.Context, email string, codeHash [32]byte, maxAttempts int, now time.Time) (OTPConsumeResult, error)
}

// Mailer delivers a freshly issued code to its destination.
type Mailer interface {
	SendCode(ctx context.Context, destination, code string) error
}

// VerifyOutcome enumerates the states of the OTP verification state machine.
type VerifyOutcome uint8

const (
	// OutcomeNoRecord means no outstanding record exists for the email.
	OutcomeNoRecord VerifyOutcome = iota
	// OutcomeExpired means the record was past its expiry and has been deleted.
	OutcomeExpired
	// OutcomeExhausted means the attempt ceiling was reached and the record deleted.
	OutcomeExhausted
	// OutcomeMismatch means the code was wrong and the attempt counter advanced.
	OutcomeMismatch
	// OutcomeMatch means the code matched and the record was consumed.
	OutcomeMatch
)

func (o VerifyOutcome) String() string {
	switch o {
	case OutcomeNoRecord:
		return "no_record"
	case OutcomeExpired:
		return "expired"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeMatch:
		return "match"
	default:
		return "unknown"
	}
}

// OTPIssue is returned by [Engine.IssueOTP].
type OTPIssue struct {
	Email     string
	TTL       time.Duration
	ExpiresAt time.Time
	// DevCode is populated only outside production when ExposeDevCode is set,
	// as an explicit substitute for mail delivery.
	DevCode string
}

// TTLSeconds is the remaining lifetime surfaced to users.
func (i OTPIssue) TTLSeconds() int {
	return int(i.TTL / time.Second)
}

// VerifyResult is returned by [Engine.VerifyOTP] on a match.
type VerifyResult struct {
	Email   string
	Outcome VerifyOutcome
}

// TokenPair carries a freshly minted access/refresh pair. The refresh token
// must only ever be written to the refresh cookie.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is returned by the account flows that end in a signed-in user.
type AuthResult struct {
	User   PublicUser
	Tokens TokenPair
}

// RefreshResult is returned by [Engine.Refresh].
type RefreshResult struct {
	UserID          string
	Role            Role
	AccessToken     string
	AccessExpiresAt time.Time
}

// AccessClaims is the validated content of an access token.
type AccessClaims struct {
	UserID    string
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}
