package relay

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/relaycore/relay/internal/config"
	"github.com/relaycore/relay/internal/log"
	"github.com/relaycore/relay/internal/metrics"
)

// safeIDPattern enforces a filesystem/URL-safe identifier: session IDs
// cross a process boundary (an HTTP path segment, in the out-of-scope
// front end this core is embedded in) so they are validated before
// being handed back to a caller.
var safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ErrCapacityExceeded is returned by CreateSession when MaxActiveSessions
// is set and already reached.
var ErrCapacityExceeded = fmt.Errorf("relay: session capacity exceeded")

// Config configures a SessionManager.
type Config struct {
	// SessionTTL is both the pre-streaming deadline (armed at session
	// creation, disarmed on entering STREAMING or any terminal state)
	// and the delay after a session goes inactive before its entry is
	// finally swept from the manager's bookkeeping. Default 30s if zero.
	SessionTTL time.Duration

	// MaxActiveSessions bounds concurrent active sessions. Zero means
	// unbounded.
	MaxActiveSessions int

	// RateLimit, if non-nil, throttles every session's forwarding loop.
	// Optional; additive capacity control, not required for correctness.
	RateLimit *rate.Limiter

	// MetricsRegisterer receives the manager's Prometheus metrics. If
	// nil, metrics are disabled (Recorder's nil receiver methods are
	// no-ops).
	MetricsRegisterer prometheus.Registerer

	// SweepInterval controls how often the reaper scans for sessions
	// whose post-terminal TTL has elapsed. Default SessionTTL if zero.
	SweepInterval time.Duration
}

// ConfigFromFile loads SessionTTL/MaxActiveSessions/SweepInterval from a
// YAML file (or from RELAY_SESSION_TTL/RELAY_MAX_ACTIVE_SESSIONS/
// RELAY_SWEEP_INTERVAL alone if path is empty) and returns the
// corresponding Config. RateLimit and MetricsRegisterer, which have no
// plain-value representation, are left unset for the caller to fill in.
func ConfigFromFile(path string) (Config, error) {
	r, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	return Config{
		SessionTTL:        r.SessionTTL,
		MaxActiveSessions: r.MaxActiveSessions,
		SweepInterval:     r.SweepInterval,
	}, nil
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.SessionTTL
	}
	return c
}

type pendingReap struct {
	id       string
	deadline time.Time
}

// SessionManager mints Sessions, indexes them by identifier, and
// schedules their bookkeeping removal a configured interval after they
// go inactive. Generalized from this codebase's session registry
// (sync.Map index, uuid identifiers) and sweeper (single ticker-driven
// reaper instead of one timer per session).
type SessionManager struct {
	cfg     Config
	index   sync.Map // string -> *Session
	limiter *semaphore.Weighted
	metrics *metrics.Recorder

	reg     sessionRegistry
	reapMu  sync.Mutex
	reapSet []pendingReap
	stopCh  chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// NewSessionManager constructs a manager and starts its background
// reaper goroutine. Call Close to stop it.
func NewSessionManager(cfg Config) *SessionManager {
	cfg = cfg.withDefaults()

	m := &SessionManager{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
	if cfg.MaxActiveSessions > 0 {
		m.limiter = semaphore.NewWeighted(int64(cfg.MaxActiveSessions))
	}
	if cfg.MetricsRegisterer != nil {
		m.metrics = metrics.NewRecorder(cfg.MetricsRegisterer)
	}

	m.reg.Go(func() { m.runReaper(cfg.SweepInterval) })
	return m
}

// CreateSession allocates a fresh identifier, constructs a Session bound
// to this manager's configuration, inserts it into the index, and
// returns the handle.
func (m *SessionManager) CreateSession(ctx context.Context) (*Session, error) {
	if m.limiter != nil {
		if !m.limiter.TryAcquire(1) {
			m.metrics.IncCapacityRejections()
			return nil, ErrCapacityExceeded
		}
	}

	id := newSessionID()
	s := newSession(ctx, id, sessionDeps{
		ttl:     m.cfg.SessionTTL,
		limiter: m.cfg.RateLimit,
		metrics: m.metrics,
		onTerminal: func(sess *Session) {
			m.onSessionTerminal(sess)
		},
	})

	m.index.Store(id, s)
	m.metrics.IncActiveSessions(1)
	return s, nil
}

// GetSession returns the live session for id, or (nil, false) if no such
// session exists or it has already become inactive. A session becomes
// invisible here the instant it reaches a terminal state or is
// deactivated; SessionTTL governs when its bookkeeping entry is finally
// swept, not when it stops being visible.
func (m *SessionManager) GetSession(id string) (*Session, bool) {
	v, ok := m.index.Load(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	if s.State().IsTerminal() {
		return nil, false
	}
	return s, true
}

// onSessionTerminal is called by a Session the instant it goes inactive
// (terminal transition or Deactivate). It removes the session from the
// lookup index immediately and schedules final bookkeeping cleanup
// SessionTTL later.
func (m *SessionManager) onSessionTerminal(s *Session) {
	if _, existed := m.index.LoadAndDelete(s.ID()); existed {
		m.metrics.IncActiveSessions(-1)
	}
	if m.limiter != nil {
		m.limiter.Release(1)
	}

	m.reapMu.Lock()
	m.reapSet = append(m.reapSet, pendingReap{id: s.ID(), deadline: time.Now().Add(m.cfg.SessionTTL)})
	m.reapMu.Unlock()
}

func (m *SessionManager) runReaper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.L().Info().Dur("interval", interval).Msg("session reaper started")

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

// sweepOnce removes pending-reap entries whose TTL has elapsed. It is
// deterministic and independently testable.
func (m *SessionManager) sweepOnce() {
	now := time.Now()

	m.reapMu.Lock()
	remaining := m.reapSet[:0]
	var expired []string
	for _, p := range m.reapSet {
		if now.After(p.deadline) {
			expired = append(expired, p.id)
		} else {
			remaining = append(remaining, p)
		}
	}
	m.reapSet = remaining
	m.reapMu.Unlock()

	if len(expired) > 0 {
		log.L().Info().Int("count", len(expired)).Msg("reaper swept expired sessions")
	}
}

// Close stops the reaper and waits (bounded by ctx) for any in-flight
// manager-owned goroutines to exit. Idempotent: a second call is a no-op.
func (m *SessionManager) Close(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	m.closeMu.Unlock()

	close(m.stopCh)
	return m.reg.CloseAndWait(ctx)
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	s := id.String()
	if !safeIDPattern.MatchString(s) {
		// uuid's canonical form contains hyphens only, which
		// safeIDPattern already allows; this branch exists as a
		// defense against a future identifier scheme that isn't
		// automatically URL/path safe.
		return fallbackSessionID()
	}
	return s
}

func fallbackSessionID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%x", b)
}

// sessionRegistry tracks manager-owned background goroutines (the
// reaper) and provides a bounded join on Close, mirroring this
// codebase's goroutine-lifetime tracking pattern for long-running
// session machinery.
type sessionRegistry struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func (r *sessionRegistry) Go(fn func()) bool {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		fn()
	}()
	return true
}

func (r *sessionRegistry) CloseAndWait(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay: session manager drain timeout: %w", ctx.Err())
	}
}
