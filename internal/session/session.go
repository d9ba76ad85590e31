// Package session owns the session table: idempotent creation through the
// capability negotiator, idempotent deletion, the per-session inactivity
// watchdog, and fatal-shutdown propagation into in-flight commands.
package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/protocol"
)

// Session is one live automation session. Identity, dialect, and accepted
// capabilities are fixed at creation; only the watchdog and lifecycle state
// mutate afterwards, guarded by the manager's locking.
type Session struct {
	ID        string
	Dialect   protocol.Dialect
	CreatedAt time.Time

	caps   map[string]any
	events *EventHistory
	logger zerolog.Logger

	timeout  time.Duration
	watchdog *time.Timer

	lifecycle context.Context
	abort     context.CancelCauseFunc
}

func newSession(id string, dialect protocol.Dialect, caps map[string]any, timeout time.Duration) *Session {
	lifecycle, abort := context.WithCancelCause(context.Background())
	return &Session{
		ID:        id,
		Dialect:   dialect,
		CreatedAt: time.Now(),
		caps:      caps,
		events:    NewEventHistory(),
		logger:    log.With().Str("session_id", id).Logger(),
		timeout:   timeout,
		lifecycle: lifecycle,
		abort:     abort,
	}
}

// Capabilities returns a copy of the accepted capability set.
func (s *Session) Capabilities() map[string]any {
	out := make(map[string]any, len(s.caps))
	for k, v := range s.caps {
		out[k] = v
	}
	return out
}

// Events returns the session's event history.
func (s *Session) Events() *EventHistory {
	return s.events
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *zerolog.Logger {
	return &s.logger
}

// NewCommandTimeout returns the session's watchdog interval; zero means the
// watchdog is disabled.
func (s *Session) NewCommandTimeout() time.Duration {
	return s.timeout
}

// CommandContext derives a command context that is additionally cancelled,
// with cause, when the session terminates. A fatal driver shutdown or a
// watchdog expiry mid-command fails the command through this context.
func (s *Session) CommandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(s.lifecycle, func() {
		cancel(context.Cause(s.lifecycle))
	})
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

// Err returns the session's termination cause, or nil while it is live.
func (s *Session) Err() error {
	return context.Cause(s.lifecycle)
}

func (s *Session) armWatchdog(onExpire func()) {
	if s.timeout <= 0 {
		return
	}
	s.watchdog = time.AfterFunc(s.timeout, onExpire)
}

// resetWatchdog pushes the expiry out by one full interval. Safe against a
// concurrently firing timer: if expiry already removed the session from the
// table, the table removal wins and this reset has no observable effect.
func (s *Session) resetWatchdog() {
	if s.watchdog == nil {
		return
	}
	s.watchdog.Reset(s.timeout)
}

// terminate stops the watchdog and cancels in-flight command contexts with
// the given cause. Idempotent.
func (s *Session) terminate(cause error) {
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	s.abort(cause)
}
