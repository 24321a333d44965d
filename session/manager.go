package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/code100x/contestauth"
	"github.com/code100x/contestauth/jwt"
)

const (
	// DefaultMargin is how long before expiry the access token is renewed.
	DefaultMargin = 5 * time.Second
	// DefaultRefreshTimeout bounds each refresh and signout round trip.
	DefaultRefreshTimeout = 5 * time.Second
)

var (
	// ErrRefreshTimeout is returned when the refresh endpoint did not answer
	// within the refresh timeout.
	ErrRefreshTimeout = errors.New("session: refresh timed out")
	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("session: manager closed")

	errStale = errors.New("session: superseded")
)

// Refresher performs the network half of a silent refresh. Refresh returns a
// fresh access token; the refresh token travels out of band (cookie).
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
	Signout(ctx context.Context) error
}

// State is a snapshot of the client session.
type State struct {
	Authenticated bool
	AccessToken   string
	ExpiresAt     time.Time
	User          contestauth.PublicUser
}

// Option configures a [Manager].
type Option func(*Manager)

func WithProfileStore(store ProfileStore) Option {
	return func(m *Manager) { m.profiles = store }
}

func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMargin sets how long before expiry renewal fires.
func WithMargin(d time.Duration) Option {
	return func(m *Manager) { m.margin = d }
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refreshTimeout = d }
}

// WithOnChange registers a callback invoked with the new state after every
// sign-in, renewal and sign-out. Calls are serialised and arrive in the order
// the transitions happened; a transition overtaken before delivery is not
// reported. The callback may read State but must not call Login or Logout.
func WithOnChange(fn func(State)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// Manager owns one client session. It is safe for concurrent use.
type Manager struct {
	refresher      Refresher
	profiles       ProfileStore
	clock          Clock
	logger         *slog.Logger
	margin         time.Duration
	refreshTimeout time.Duration
	onChange       func(State)

	mu     sync.Mutex
	state  State
	timer  Timer
	gen    uint64
	closed bool

	// pubMu orders profile writes and onChange calls. rewrites counts profile
	// writes made to undo an overtaken transition.
	pubMu    sync.Mutex
	rewrites uint64
}

func NewManager(refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		refresher:      refresher,
		margin:         DefaultMargin,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.profiles == nil {
		m.profiles = &MemoryProfileStore{}
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Init restores the session at client start with a silent refresh. On
// failure the session is left signed out and the error returned.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	gen := m.gen
	m.mu.Unlock()

	err := m.silentRefresh(ctx, gen)
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}

// Login installs a token obtained from signin or OTP verification, stores
// the profile and arms renewal.
func (m *Manager) Login(user contestauth.PublicUser, accessToken string) error {
	claims, err := jwt.UnverifiedAccessClaims(accessToken)
	if err != nil {
		return fmt.Errorf("session: decode access token: %w", err)
	}
	if user.ID == "" {
		user.ID = claims.Subject
	}
	if user.Role == "" {
		user.Role = contestauth.Role(claims.Role)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.state = State{
		Authenticated: true,
		AccessToken:   accessToken,
		ExpiresAt:     claims.ExpiresAt.Time,
		User:          user,
	}
	m.scheduleLocked(claims.ExpiresAt.Time)
	gen, snapshot := m.gen, m.state
	m.mu.Unlock()

	m.publish(gen, snapshot)
	return nil
}

// Logout cancels renewal, tells the server (best effort) and clears local
// state whatever the server answered.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.stopTimerLocked()
	m.gen++
	m.mu.Unlock()

	if m.refresher != nil {
		ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
		if err := m.refresher.Signout(ctx); err != nil {
			m.logger.Warn("signout request failed; clearing local session", "error", err)
		}
		cancel()
	}

	m.mu.Lock()
	m.stopTimerLocked()
	m.gen++
	m.state = State{}
	gen := m.gen
	m.mu.Unlock()

	m.publish(gen, State{})
}

// Close stops renewal without any network traffic or state change. The
// Manager cannot be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopTimerLocked()
	m.gen++
}

// State returns a copy of the current session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AccessToken returns the current token for an Authorization header.
func (m *Manager) AccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AccessToken, m.state.Authenticated
}

func (m *Manager) renew(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := m.silentRefresh(context.Background(), gen); err != nil && !errors.Is(err, errStale) {
		m.logger.Info("session renewal failed; signed out", "error", err)
	}
}

// silentRefresh fetches a new access token and applies it if no logout,
// login or reschedule happened while the request was in flight.
func (m *Manager) silentRefresh(ctx context.Context, gen uint64) error {
	if m.refresher == nil {
		return m.fail(gen, errors.New("session: no refresher configured"))
	}

	rctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	token, err := m.refresher.Refresh(rctx)
	timedOut := errors.Is(rctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut {
			err = ErrRefreshTimeout
		}
		return m.fail(gen, err)
	}

	claims, err := jwt.UnverifiedAccessClaims(token)
	if err != nil {
		return m.fail(gen, fmt.Errorf("session: decode access token: %w", err))
	}

	user := contestauth.PublicUser{
		ID:   claims.Subject,
		Role: contestauth.Role(claims.Role),
	}
	if stored, ok, err := m.profiles.Load(); err != nil {
		m.logger.Warn("load profile", "error", err)
	} else if ok && stored.ID == user.ID {
		user.Email = stored.Email
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return errStale
	}
	m.state = State{
		Authenticated: true,
		AccessToken:   token,
		ExpiresAt:     claims.ExpiresAt.Time,
		User:          user,
	}
	m.scheduleLocked(claims.ExpiresAt.Time)
	gen, snapshot := m.gen, m.state
	m.mu.Unlock()

	m.publish(gen, snapshot)
	return nil
}

// fail clears the session unless the attempt was superseded.
func (m *Manager) fail(gen uint64, cause error) error {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return errStale
	}
	m.stopTimerLocked()
	m.gen++
	m.state = State{}
	gen = m.gen
	m.mu.Unlock()

	m.publish(gen, State{})
	return cause
}

// publish persists s and reports it to onChange. The profile write runs
// without locks so a slow store never stalls Logout. If another transition
// has committed by the time the write returns, the profile is rewritten from
// the live state and s is not reported.
func (m *Manager) publish(gen uint64, s State) {
	m.pubMu.Lock()
	before := m.rewrites
	m.pubMu.Unlock()

	m.writeProfile(s)

	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	current := gen == m.gen
	live := m.state
	m.mu.Unlock()

	if !current {
		m.writeProfile(live)
		m.rewrites++
		return
	}
	// An overtaken publisher may have rewritten the profile while ours
	// was in flight.
	if m.rewrites != before {
		m.writeProfile(s)
	}
	if m.onChange != nil {
		m.onChange(s)
	}
}

func (m *Manager) writeProfile(s State) {
	if s.Authenticated {
		if err := m.profiles.Save(s.User); err != nil {
			m.logger.Warn("save profile", "error", err)
		}
		return
	}
	if err := m.profiles.Clear(); err != nil {
		m.logger.Warn("clear profile", "error", err)
	}
}

// scheduleLocked replaces any pending timer with one firing margin before
// expiresAt. Nothing is armed when that moment has already passed.
func (m *Manager) scheduleLocked(expiresAt time.Time) {
	m.stopTimerLocked()
	m.gen++

	delay := expiresAt.Sub(m.clock.Now()) - m.margin
	if delay <= 0 {
		m.logger.Debug("access token too close to expiry; renewal not scheduled", "expires_at", expiresAt)
		return
	}

	gen := m.gen
	m.timer = m.clock.AfterFunc(delay, func() { m.renew(gen) })
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
