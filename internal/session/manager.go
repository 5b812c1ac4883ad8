// Package session owns the signed-in state of the back-office: who is
// logged in, whether their token is still good, and what happens when it
// is not.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/atelier/pkg/jwtx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

const (
	DefaultCheckInterval = 5 * time.Minute
	DefaultRefreshAhead  = time.Minute
)

// ErrInvalidCredentials is returned by Login for rejected credentials or an
// unusable login response. Nothing is stored in that case.
var ErrInvalidCredentials = errors.New("session: invalid email or password")

// Status is the coarse session state shown to the user.
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticated
	// StatusExpired means a session existed but could not be kept alive;
	// the user should be prompted to sign in again.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpired:
		return "expired"
	default:
		return "anonymous"
	}
}

// Manager tracks the current user and keeps their session alive.
// Lifecycle: New, Init, Start, then Close.
type Manager struct {
	client        *shopsdk.Client
	storage       shopsdk.TokenStorage
	logger        *slog.Logger
	checkInterval time.Duration
	refreshAhead  time.Duration
	now           func() time.Time

	mu     sync.RWMutex
	user   *shopsdk.User
	status Status

	subsMu    sync.RWMutex
	subs      []func(*shopsdk.User)
	redirects []func(route string)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

func WithRefreshAhead(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.refreshAhead = d
		}
	}
}

// WithRedirectHandler registers fn to be told where to send the user after
// a logout or an unrecoverable expiry.
func WithRedirectHandler(fn func(route string)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.redirects = append(m.redirects, fn)
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager around client. Credentials are read from and
// written to the client's storage.
func New(client *shopsdk.Client, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		client:        client,
		storage:       client.Storage(),
		logger:        logger.With("component", "session"),
		checkInterval: DefaultCheckInterval,
		refreshAhead:  DefaultRefreshAhead,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	client.OnSessionExpired(m.handleExpired)
	return m
}

// ============================================================================
// Lifecycle
// ============================================================================

// Init restores a stored session. A stored token that no longer validates
// (and cannot be refreshed) is cleared and the status becomes
// StatusExpired so the caller can prompt for a new login.
func (m *Manager) Init(ctx context.Context) error {
	creds, err := m.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if creds.Empty() {
		m.set(nil, StatusAnonymous)
		return nil
	}

	user, ok := m.validate(ctx, creds.User)
	if !ok {
		m.logger.Info("stored session is no longer valid")
		m.expire(ctx, false)
		return nil
	}

	// Best-effort profile refresh; the cached snapshot is good enough.
	if me, err := m.client.Auth.Me(ctx); err == nil && me != nil {
		user = me
		m.persistUser(ctx, me)
	} else if err != nil {
		m.logger.Debug("profile refresh failed, using cached user", "err", err)
	}

	m.set(user, StatusAuthenticated)
	return nil
}

// validate checks the stored token, refreshing once if it was rejected.
func (m *Manager) validate(ctx context.Context, cached *shopsdk.User) (*shopsdk.User, bool) {
	v, err := m.client.Auth.Validate(ctx)
	if err != nil {
		var apiErr *shopsdk.APIError
		if !errors.As(err, &apiErr) && cached != nil {
			// Backend unreachable: keep the cached session, the periodic
			// check will settle it.
			m.logger.Warn("token validation unavailable, using cached session", "err", err)
			return cached, true
		}
		m.logger.Warn("token validation failed", "err", err)
		return nil, false
	}
	if !v.Valid {
		if !m.client.RefreshSession(ctx) {
			return nil, false
		}
		creds, err := m.storage.Load(ctx)
		if err != nil || creds.Empty() {
			return nil, false
		}
		if creds.User != nil {
			return creds.User, true
		}
		return cached, cached != nil
	}
	if v.User != nil {
		return v.User, true
	}
	return cached, cached != nil
}

// Start runs the periodic session check until ctx is cancelled or Close is
// called.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Close stops the background check and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Check runs one session check: refresh ahead of expiry, then validate and
// refresh on rejection. A session that cannot be recovered is logged out.
func (m *Manager) Check(ctx context.Context) {
	if !m.IsAuthenticated() {
		return
	}

	creds, err := m.storage.Load(ctx)
	if err != nil {
		m.logger.Warn("session check: credentials unavailable", "err", err)
		return
	}
	if creds.Empty() {
		m.expire(ctx, true)
		return
	}

	if m.expiresSoon(creds.Token) {
		m.logger.Debug("refreshing token ahead of expiry")
		if !m.client.RefreshSession(ctx) {
			m.expire(ctx, true)
		}
		return
	}

	v, err := m.client.Auth.Validate(ctx)
	if err != nil {
		// Network trouble is not a reason to log anyone out.
		m.logger.Warn("session check: validation unavailable", "err", err)
		return
	}
	if v.Valid {
		return
	}
	if !m.client.RefreshSession(ctx) {
		m.expire(ctx, true)
	}
}

func (m *Manager) expiresSoon(token string) bool {
	exp, err := jwtx.ExpiresAt(token)
	if err != nil {
		return false
	}
	return exp.Sub(m.now()) <= m.refreshAhead
}

// ============================================================================
// Login / logout
// ============================================================================

// Login signs in. MFA-protected accounts get a *shopsdk.MFARequiredError
// to be completed with CompleteMFA.
func (m *Manager) Login(ctx context.Context, email, password string) (*shopsdk.User, error) {
	res, err := m.client.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, m.loginError(err)
	}
	m.set(res.User, StatusAuthenticated)
	m.logger.Info("logged in", "user_id", res.User.ID, "role", res.User.Role)
	return res.User, nil
}

// CompleteMFA finishes a login that was challenged for a second factor.
func (m *Manager) CompleteMFA(ctx context.Context, challenge *shopsdk.MFARequiredError, code string) (*shopsdk.User, error) {
	if challenge == nil {
		return nil, errors.New("session: no mfa challenge")
	}
	res, err := m.client.Auth.VerifyMFA(ctx, challenge.TempToken, code)
	if err != nil {
		return nil, m.loginError(err)
	}
	m.set(res.User, StatusAuthenticated)
	m.logger.Info("logged in with mfa", "user_id", res.User.ID)
	return res.User, nil
}

func (m *Manager) loginError(err error) error {
	var mfaErr *shopsdk.MFARequiredError
	if errors.As(err, &mfaErr) {
		return err
	}

	var apiErr *shopsdk.APIError
	var contractErr *shopsdk.ContractError
	var decodeErr *shopsdk.DecodeError
	var validationErr shopsdk.ValidationErrors
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	case errors.As(err, &contractErr), errors.As(err, &decodeErr), errors.As(err, &validationErr):
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return err
}

// Logout signs out. The server call is best effort; local state is always
// cleared and redirect handlers are sent to the login route.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.client.Auth.Logout(ctx); err != nil {
		m.logger.Warn("logout call failed", "err", err)
	}
	m.set(nil, StatusAnonymous)
	m.redirect(shopsdk.LoginRoute)
}

// expire drops the session locally and, when redirect is set, sends
// redirect handlers to the login route.
func (m *Manager) expire(ctx context.Context, redirect bool) {
	if err := m.storage.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("failed to clear credentials", "err", err)
	}
	m.set(nil, StatusExpired)
	if redirect {
		m.redirect(shopsdk.LoginRoute)
	}
}

// handleExpired is the client's session-expired hook. The client has
// already cleared storage.
func (m *Manager) handleExpired(route string) {
	m.logger.Info("session expired by backend")
	m.set(nil, StatusExpired)
	m.redirect(route)
}

func (m *Manager) persistUser(ctx context.Context, u *shopsdk.User) {
	creds, err := m.storage.Load(ctx)
	if err != nil || creds.Empty() {
		return
	}
	creds.User = u
	if err := m.storage.Save(ctx, creds); err != nil {
		m.logger.Warn("failed to persist profile", "err", err)
	}
}

// ============================================================================
// State
// ============================================================================

func (m *Manager) set(u *shopsdk.User, status Status) {
	m.mu.Lock()
	changed := !sameUser(m.user, u)
	m.user = u
	m.status = status
	m.mu.Unlock()

	if changed {
		m.subsMu.RLock()
		subs := append([]func(*shopsdk.User){}, m.subs...)
		m.subsMu.RUnlock()
		for _, fn := range subs {
			fn(u)
		}
	}
}

func sameUser(a, b *shopsdk.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Role == b.Role && a.UpdatedAt.Equal(b.UpdatedAt)
}

func (m *Manager) redirect(route string) {
	m.subsMu.RLock()
	fns := append([]func(string){}, m.redirects...)
	m.subsMu.RUnlock()
	for _, fn := range fns {
		fn(route)
	}
}

// OnChange registers fn to be called whenever the current user changes,
// with nil on logout.
func (m *Manager) OnChange(fn func(*shopsdk.User)) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs = append(m.subs, fn)
}

// User returns the signed-in user, or nil.
func (m *Manager) User() *shopsdk.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsAuthenticated reports whether a user is signed in and not expired.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.status == StatusAuthenticated
}

// IsAdmin reports whether the signed-in user may use the back-office.
func (m *Manager) IsAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status == StatusAuthenticated && m.user.IsAdmin()
}
