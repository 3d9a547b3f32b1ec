package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jmcleod/storefront/token"
)

const (
	// DefaultRefreshLookahead is how long before expiry the token is refreshed.
	DefaultRefreshLookahead = time.Hour
	// DefaultSweepInterval is the period of the expiry safety-net check.
	DefaultSweepInterval = time.Minute
)

// Refresher re-issues the session token.
type Refresher interface {
	RefreshToken(ctx context.Context) (Session, error)
}

// Logouter tells the server to drop the session cookie.
type Logouter interface {
	Logout(ctx context.Context) error
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(msg string)
}

// Navigator moves the user to the login screen.
type Navigator interface {
	RedirectToLogin()
}

// Observer sees every API request and response. The API client calls
// BeginRequest before sending and passes the returned context to the
// request, then calls ObserveResponse synchronously with the result.
type Observer interface {
	BeginRequest(ctx context.Context) context.Context
	ObserveResponse(req *http.Request, resp *http.Response)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

// WithRefresher enables proactive refresh.
func WithRefresher(r Refresher) Option { return func(m *Manager) { m.refresher = r } }

// WithLogouter sets the server logout call used by Logout and forced logouts.
func WithLogouter(l Logouter) Option { return func(m *Manager) { m.logouter = l } }

// WithNotifier sets where the expired-session message is shown.
func WithNotifier(n Notifier) Option { return func(m *Manager) { m.notifier = n } }

// WithNavigator sets the redirect to the login screen after a forced logout.
func WithNavigator(n Navigator) Option { return func(m *Manager) { m.navigator = n } }

// WithLogger sets the logger. It is tagged component=session.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithRefreshLookahead sets how long before expiry the refresh fires.
func WithRefreshLookahead(d time.Duration) Option {
	return func(m *Manager) { m.lookahead = d }
}

// WithSweepInterval sets the expiry sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

// OnCleared registers fn to run after each Authenticated to Anonymous
// transition.
func OnCleared(fn func(Reason)) Option {
	return func(m *Manager) { m.onCleared = append(m.onCleared, fn) }
}

// Manager owns the client session.
//
// generation changes whenever pending timers must be invalidated. epoch
// changes only when the identity does (SetSession, Restore, ClearSession),
// so a refresh keeps the epoch and a 401 on a request begun under an
// earlier identity is ignored.
//
// The session moves from anonymous to authenticated only through SetSession
// and back only through ClearSession. ClearSession is idempotent, so the
// refresh timer, the expiry sweep and the response observer may all race to
// end a session. At most one refresh is in flight; the next one is scheduled
// from the completion of the previous.
type Manager struct {
	store         *Store
	clock         Clock
	refresher     Refresher
	logouter      Logouter
	notifier      Notifier
	navigator     Navigator
	logger        *slog.Logger
	lookahead     time.Duration
	sweepInterval time.Duration
	onCleared     []func(Reason)

	mu           sync.Mutex
	session      *Session
	generation   uint64
	epoch        uint64
	startSeq     uint64
	stopWatch    context.CancelFunc
	refreshing   bool
	forcing      bool
	running      bool
	stopped      bool
	ctx          context.Context
	refreshTimer Timer
	sweepTimer   Timer
}

// NewManager returns a Manager persisting to store. Call Restore to pick up
// a session left by a previous run and Start to enable the expiry sweep.
func NewManager(store *Store, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		clock:         SystemClock,
		logger:        slog.Default(),
		lookahead:     DefaultRefreshLookahead,
		sweepInterval: DefaultSweepInterval,
		ctx:           context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Session returns the in-memory session.
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Authenticated reports whether there is a session in memory backed by a
// persisted copy whose marker has not passed.
func (m *Manager) Authenticated(ctx context.Context) bool {
	m.mu.Lock()
	has := m.session != nil
	m.mu.Unlock()
	if !has || m.IsExpired(ctx) {
		return false
	}
	_, ok, err := m.store.Load(ctx)
	return err == nil && ok
}

// IsExpired reports whether the persisted expiry marker exists and is in
// the past. It does not consult in-memory state. An unreadable marker
// counts as expired.
func (m *Manager) IsExpired(ctx context.Context) bool {
	marker, ok, err := m.store.Marker(ctx)
	if err != nil {
		m.logger.Warn("unreadable expiry marker", "error", err)
		return true
	}
	return ok && m.clock.Now().After(marker)
}

// SetSession stores s in memory and persists it with an expiry marker.
// The marker is s.ExpiresAt when the server supplied one, otherwise now plus
// the token lifetime for rememberMe.
func (m *Manager) SetSession(ctx context.Context, s Session, rememberMe bool) error {
	m.mu.Lock()
	err := m.setLocked(ctx, s, rememberMe)
	if err == nil {
		m.epoch++
	}
	m.mu.Unlock()
	if err == nil {
		m.logger.Info("session set", "user_id", s.UserID, "remember", rememberMe)
	}
	return err
}

func (m *Manager) setLocked(ctx context.Context, s Session, rememberMe bool) error {
	if s.UserID == "" {
		return errors.New("session has no user id")
	}
	now := m.clock.Now()
	if s.IssuedAt.IsZero() {
		s.IssuedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(token.TTL(rememberMe))
	}
	s.Remember = rememberMe
	if err := m.store.Save(ctx, s, s.ExpiresAt); err != nil {
		return err
	}
	m.session = &s
	m.generation++
	m.scheduleLocked()
	m.armSweepLocked()
	return nil
}

// UpdateSession applies fn to the current session and persists the result,
// keeping the expiry marker. The user id cannot change.
func (m *Manager) UpdateSession(ctx context.Context, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ErrNotAuthenticated
	}
	next := *m.session
	fn(&next)
	next.UserID = m.session.UserID
	next.ExpiresAt = m.session.ExpiresAt
	if err := m.store.SaveSession(ctx, next); err != nil {
		return err
	}
	m.session = &next
	return nil
}

// ClearSession drops the session from memory and storage and cancels all
// timers. Calling it with no session is a no-op apart from re-clearing
// storage. OnCleared hooks run once per actual transition.
func (m *Manager) ClearSession(ctx context.Context, reason Reason) error {
	_, err := m.clearSession(ctx, reason, nil)
	return err
}

// clearSession clears unconditionally when epoch is nil, otherwise only if
// the identity is still the one *epoch names. It reports whether it cleared.
func (m *Manager) clearSession(ctx context.Context, reason Reason, epoch *uint64) (bool, error) {
	m.mu.Lock()
	if epoch != nil && *epoch != m.epoch {
		m.mu.Unlock()
		return false, nil
	}
	had := m.session != nil
	m.session = nil
	m.generation++
	if had {
		m.epoch++
	}
	m.stopTimersLocked()
	err := m.store.Clear(ctx)
	hooks := m.onCleared
	m.mu.Unlock()

	if had {
		m.logger.Info("session cleared", "reason", string(reason))
		for _, h := range hooks {
			h(reason)
		}
	}
	return true, err
}

// ScheduleProactiveRefresh arms the refresh timer from the persisted marker.
// It does nothing while a refresh is in flight.
func (m *Manager) ScheduleProactiveRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleLocked()
}

func (m *Manager) scheduleLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if m.refresher == nil || m.session == nil || m.refreshing || m.stopped {
		return
	}
	marker := m.session.ExpiresAt
	if persisted, ok, err := m.store.Marker(m.ctx); err == nil && ok {
		marker = persisted
	}
	untilExpiry := marker.Sub(m.clock.Now())
	if untilExpiry <= 0 {
		// Already lapsed; the sweep or the next 401 ends the session.
		return
	}
	delay := untilExpiry - m.lookahead
	if delay < 0 {
		delay = 0
	}
	gen := m.generation
	m.refreshTimer = m.clock.AfterFunc(delay, func() { m.refresh(gen) })
}

func (m *Manager) refresh(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.session == nil || m.refreshing {
		m.mu.Unlock()
		return
	}
	m.refreshing = true
	m.refreshTimer = nil
	remember := m.session.Remember
	ctx := m.ctx
	m.mu.Unlock()

	s, err := m.refresher.RefreshToken(ctx)

	m.mu.Lock()
	m.refreshing = false
	if gen != m.generation {
		// The session was replaced or cleared while the call was out.
		m.scheduleLocked()
		m.mu.Unlock()
		return
	}
	if err == nil {
		err = m.setLocked(ctx, s, remember)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("token refresh failed", "error", err)
		if cerr := m.ClearSession(ctx, ReasonRefreshFailed); cerr != nil {
			m.logger.Error("clearing session after refresh failure", "error", cerr)
		}
		return
	}
	m.logger.Debug("token refreshed")
}

// Start enables the periodic expiry sweep until ctx is done or Stop is called.
// Calling Start again replaces the previous ctx; only the latest one can
// stop the Manager.
func (m *Manager) Start(ctx context.Context) {
	watch, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.stopWatch != nil {
		m.stopWatch()
	}
	m.startSeq++
	seq := m.startSeq
	m.stopWatch = cancel
	m.running = true
	m.stopped = false
	m.ctx = ctx
	m.scheduleLocked()
	m.armSweepLocked()
	m.mu.Unlock()

	go func() {
		<-watch.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if seq == m.startSeq && ctx.Err() != nil {
			m.stopLocked()
		}
	}()
}

// Stop cancels every timer. A session stays in memory and storage.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	m.running = false
	m.stopped = true
	m.generation++
	m.stopTimersLocked()
}

func (m *Manager) stopTimersLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if m.sweepTimer != nil {
		m.sweepTimer.Stop()
		m.sweepTimer = nil
	}
}

func (m *Manager) armSweepLocked() {
	if !m.running || m.session == nil || m.sweepTimer != nil {
		return
	}
	m.sweepTimer = m.clock.AfterFunc(m.sweepInterval, m.sweep)
}

func (m *Manager) sweep() {
	m.mu.Lock()
	m.sweepTimer = nil
	if !m.running || m.session == nil {
		m.mu.Unlock()
		return
	}
	m.armSweepLocked()
	ctx := m.ctx
	m.mu.Unlock()

	if m.IsExpired(ctx) {
		m.forceLogout(ctx, ReasonExpired, false)
		return
	}
	if _, ok, err := m.store.Load(ctx); err == nil && !ok {
		m.forceLogout(ctx, ReasonExternal, false)
	}
}

type epochKey struct{}

// BeginRequest stamps ctx with the current identity epoch.
func (m *Manager) BeginRequest(ctx context.Context) context.Context {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	return context.WithValue(ctx, epochKey{}, epoch)
}

// ObserveResponse forces a logout when a request made with a session
// comes back 401. A request begun under an earlier identity is ignored.
func (m *Manager) ObserveResponse(req *http.Request, resp *http.Response) {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return
	}
	ctx := context.Background()
	if req != nil {
		ctx = context.WithoutCancel(req.Context())
		if epoch, ok := req.Context().Value(epochKey{}).(uint64); ok {
			m.mu.Lock()
			stale := epoch != m.epoch
			m.mu.Unlock()
			if stale {
				m.logger.Debug("ignoring 401 from an earlier session")
				return
			}
		}
	}
	m.forceLogout(ctx, ReasonUnauthorized, true)
}

// Logout ends the session at the user's request. A failed server call
// still logs out locally.
func (m *Manager) Logout(ctx context.Context) error {
	if m.logouter != nil {
		if err := m.logouter.Logout(ctx); err != nil {
			m.logger.Warn("remote logout failed, logging out locally", "error", err)
		}
	}
	return m.ClearSession(ctx, ReasonLogout)
}

// forceLogout runs at most once per session no matter how many callers
// race into it.
func (m *Manager) forceLogout(ctx context.Context, reason Reason, remote bool) {
	m.mu.Lock()
	if m.session == nil || m.forcing {
		m.mu.Unlock()
		return
	}
	m.forcing = true
	epoch := m.epoch
	m.mu.Unlock()

	if remote && m.logouter != nil {
		if err := m.logouter.Logout(ctx); err != nil {
			m.logger.Debug("remote logout failed", "error", err)
		}
	}
	// A SetSession during the remote call wins over this logout.
	cleared, err := m.clearSession(ctx, reason, &epoch)
	if err != nil {
		m.logger.Error("clearing session", "reason", string(reason), "error", err)
	}

	m.mu.Lock()
	m.forcing = false
	m.mu.Unlock()

	if !cleared {
		return
	}
	if m.notifier != nil {
		m.notifier.Notify(ExpiredMessage)
	}
	if m.navigator != nil {
		m.navigator.RedirectToLogin()
	}
}

// Restore loads a session persisted by an earlier run. An expired one is
// cleared; a live one is adopted and its refresh scheduled.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	s, ok, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if m.IsExpired(ctx) {
		if err := m.ClearSession(ctx, ReasonExpired); err != nil {
			return false, err
		}
		return false, nil
	}
	marker, hasMarker, err := m.store.Marker(ctx)
	if err != nil {
		return false, err
	}
	if !hasMarker {
		m.logger.Warn("persisted session has no expiry marker, discarding")
		return false, m.ClearSession(ctx, ReasonExpired)
	}

	m.mu.Lock()
	s.ExpiresAt = marker
	m.session = &s
	m.generation++
	m.epoch++
	m.scheduleLocked()
	m.armSweepLocked()
	m.mu.Unlock()
	m.logger.Info("session restored", "user_id", s.UserID, "expires_at", marker)
	return true, nil
}
