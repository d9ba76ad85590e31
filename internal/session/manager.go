package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/capabilities"
	"github.com/driverhub/driverhub/internal/common/uuid"
	"github.com/driverhub/driverhub/internal/protocol"
	"github.com/driverhub/driverhub/pkg/driver"
)

const defaultIdempotencyGrace = 30 * time.Second

// teardownTimeout bounds driver teardown for watchdog-triggered deletes,
// which run outside any request context.
const teardownTimeout = 30 * time.Second

// createFuture is the shared in-flight result for one idempotency key.
// Concurrent creations bearing the same key block on done and observe the
// first request's outcome.
type createFuture struct {
	done    chan struct{}
	session *Session
	err     error
}

// Manager owns the session and idempotency tables. All session-table
// mutation goes through it.
type Manager struct {
	drv            driver.Driver
	defaultTimeout time.Duration
	idemGrace      time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	idemMu  sync.Mutex
	pending map[string]*createFuture

	hookMu      sync.Mutex
	removeHooks []func(id string)
}

// NewManager creates a session manager over the given driver.
// defaultTimeout is the new-command timeout applied when the capabilities do
// not override it; zero disables the watchdog by default. If the driver
// reports unexpected shutdowns, the manager subscribes to them.
func NewManager(drv driver.Driver, defaultTimeout time.Duration) *Manager {
	m := &Manager{
		drv:            drv,
		defaultTimeout: defaultTimeout,
		idemGrace:      defaultIdempotencyGrace,
		sessions:       make(map[string]*Session),
		pending:        make(map[string]*createFuture),
	}
	if sn, ok := drv.(driver.ShutdownNotifier); ok {
		sn.OnUnexpectedShutdown(m.handleUnexpectedShutdown)
	}
	return m
}

// Create negotiates capabilities and starts a session. When idemKey is
// non-empty, concurrent calls sharing the key collapse onto a single
// negotiation: the first caller performs it, the rest subscribe to its
// result. Records are pruned a grace window after the result is delivered.
func (m *Manager) Create(ctx context.Context, payload map[string]any, idemKey string) (*Session, error) {
	if idemKey == "" {
		return m.create(ctx, payload)
	}

	m.idemMu.Lock()
	if f, ok := m.pending[idemKey]; ok {
		m.idemMu.Unlock()
		select {
		case <-f.done:
			return f.session, f.err
		case <-ctx.Done():
			return nil, ErrSessionError.Msg("session creation interrupted: " + ctx.Err().Error())
		}
	}
	f := &createFuture{done: make(chan struct{})}
	m.pending[idemKey] = f
	m.idemMu.Unlock()

	f.session, f.err = m.create(ctx, payload)
	close(f.done)

	time.AfterFunc(m.idemGrace, func() {
		m.idemMu.Lock()
		delete(m.pending, idemKey)
		m.idemMu.Unlock()
	})
	return f.session, f.err
}

func (m *Manager) create(ctx context.Context, payload map[string]any) (*Session, error) {
	dialect := protocol.DetectDialect(payload)

	var accepted map[string]any
	var err error
	if dialect == protocol.W3C {
		var req *capabilities.Request
		req, err = capabilities.ParseRequest(payload)
		if err != nil {
			return nil, err
		}
		accepted, err = capabilities.Negotiate(req, m.drv.Constraints())
	} else {
		desired, ok := payload["desiredCapabilities"].(map[string]any)
		if !ok {
			return nil, protocol.NewError(protocol.ErrorSessionNotCreated,
				"capabilities request must contain a 'desiredCapabilities' object")
		}
		accepted, err = capabilities.NegotiateLegacy(desired, m.drv.Constraints())
	}
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	enriched, err := m.drv.CreateSession(ctx, id, accepted)
	if err != nil {
		// No partial session: nothing was registered yet.
		return nil, err
	}
	if enriched != nil {
		accepted = enriched
	}

	s := newSession(id, dialect, accepted, m.commandTimeout(accepted))

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	// Armed only after the session is in the table; an expiry that fires
	// immediately must find the session to remove it.
	s.armWatchdog(func() { m.expire(id) })

	s.logger.Info().Str("dialect", string(dialect)).
		Dur("new_command_timeout", s.timeout).Msg("session created")
	return s, nil
}

// commandTimeout resolves the watchdog interval from the accepted
// capabilities, falling back to the manager default. newCommandTimeout of 0,
// or false, disables the watchdog.
func (m *Manager) commandTimeout(accepted map[string]any) time.Duration {
	if raw, ok := accepted["newCommandTimeout"]; ok {
		if b, isBool := raw.(bool); isBool {
			if !b {
				return 0
			}
			return m.defaultTimeout
		}
	}
	base, err := capabilities.Decode(accepted)
	if err != nil {
		log.Warn().Err(err).Msg("cannot decode base capabilities, using default new-command timeout")
		return m.defaultTimeout
	}
	if base.NewCommandTimeout == nil {
		return m.defaultTimeout
	}
	return time.Duration(*base.NewCommandTimeout * float64(time.Second))
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNoSuchSession.Msg("no such session " + id)
	}
	return s, nil
}

// List returns the live sessions ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Delete tears down a session. The session leaves the table before driver
// teardown runs, so deletion is complete even when teardown fails; teardown
// errors are logged, never returned. Deleting an absent id is a no-op
// success.
func (m *Manager) Delete(ctx context.Context, id string) error {
	s, ok := m.remove(id)
	if !ok {
		log.Ctx(ctx).Debug().Str("session_id", id).Msg("delete of absent session, nothing to do")
		return nil
	}
	s.terminate(ErrNoSuchSession.Msg("session " + id + " was deleted"))
	if err := m.drv.DeleteSession(ctx, id); err != nil {
		s.logger.Warn().Err(err).Msg("driver teardown failed, session removed anyway")
	}
	s.logger.Info().Msg("session deleted")
	return nil
}

// expire is the watchdog callback: force-delete the idle session. Removal
// from the table happens first, so a command racing the expiry observes
// no-such-session rather than a half-deleted session.
func (m *Manager) expire(id string) {
	s, ok := m.remove(id)
	if !ok {
		return
	}
	s.logger.Warn().Dur("new_command_timeout", s.timeout).
		Msg("no command within the new-command timeout, force-deleting session")
	s.terminate(ErrSessionExpired)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := m.drv.DeleteSession(ctx, id); err != nil {
		s.logger.Warn().Err(err).Msg("driver teardown failed for expired session")
	}
}

// OnRemove registers a callback invoked whenever a session leaves the table,
// whatever the reason: explicit delete, watchdog expiry, or an unexpected
// driver shutdown. Components holding per-session state keyed on the session
// id use this to evict their entries.
func (m *Manager) OnRemove(fn func(id string)) {
	m.hookMu.Lock()
	m.removeHooks = append(m.removeHooks, fn)
	m.hookMu.Unlock()
}

func (m *Manager) remove(id string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		m.hookMu.Lock()
		hooks := m.removeHooks
		m.hookMu.Unlock()
		for _, fn := range hooks {
			fn(id)
		}
	}
	return s, ok
}

// Touch resets the session's watchdog after a successfully dispatched
// command and records it in the event history.
func (m *Manager) Touch(id string) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	s.resetWatchdog()
	s.events.Log("commands")
}

// handleUnexpectedShutdown reacts to a fatal driver error outside the
// request cycle: in-flight commands for the session fail with the driver's
// error and the session is terminated.
func (m *Manager) handleUnexpectedShutdown(sessionID string, err error) {
	s, ok := m.remove(sessionID)
	if !ok {
		return
	}
	s.logger.Error().Err(err).Msg("driver shut down unexpectedly, terminating session")
	s.terminate(err)
}

// Shutdown deletes every live session, for graceful process teardown.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, s := range m.List() {
		_ = m.Delete(ctx, s.ID)
	}
}
