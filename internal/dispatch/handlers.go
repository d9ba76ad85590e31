package dispatch

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/protocol"
)

// StatusHandler serves GET /status: readiness plus build info, sessionless.
func (d *Dispatcher) StatusHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := map[string]any{
			"ready":   true,
			"message": "driverhub is ready to accept commands",
			"build":   map[string]any{"version": version},
		}
		renderSuccess(r.Context(), w, protocol.W3C, "", value)
	}
}

// CreateSessionHandler serves POST /session. The request's own shape picks
// the dialect for the whole session; an idempotency header collapses
// concurrent duplicates onto one session.
func (d *Dispatcher) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		_, body, err := readBody(r)
		if err != nil {
			renderError(ctx, w, protocol.W3C, "", err)
			return
		}
		dialect := protocol.DetectDialect(body)

		idemKey := ""
		if d.IdempotencyHeader != "" {
			idemKey = r.Header.Get(d.IdempotencyHeader)
		}

		s, err := d.sessions.Create(ctx, body, idemKey)
		if err != nil {
			renderError(ctx, w, dialect, "", err)
			return
		}

		log.Ctx(ctx).Info().Str("session_id", s.ID).Str("dialect", string(dialect)).Msg("session started")
		if dialect == protocol.W3C {
			renderSuccess(ctx, w, dialect, s.ID, map[string]any{
				"sessionId":    s.ID,
				"capabilities": s.Capabilities(),
			})
			return
		}
		renderSuccess(ctx, w, dialect, s.ID, s.Capabilities())
	}
}

// GetSessionHandler serves GET /session/{sessionId}: the accepted
// capabilities, in the session's own dialect.
func (d *Dispatcher) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := chi.URLParam(r, "sessionId")
		s, err := d.sessions.Get(sessionID)
		if err != nil {
			renderError(ctx, w, protocol.W3C, sessionID, err)
			return
		}
		d.sessions.Touch(sessionID)
		renderSuccess(ctx, w, s.Dialect, sessionID, s.Capabilities())
	}
}

// GetSessionsHandler serves GET /sessions: id and capabilities for every
// live session. Legacy companion endpoint, so the legacy envelope.
func (d *Dispatcher) GetSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := make([]map[string]any, 0)
		for _, s := range d.sessions.List() {
			list = append(list, map[string]any{
				"id":           s.ID,
				"capabilities": s.Capabilities(),
			})
		}
		renderSuccess(r.Context(), w, protocol.JSONWP, "", list)
	}
}

// GetEventsHandler serves GET /session/{sessionId}/events: the session's
// event history, observability only.
func (d *Dispatcher) GetEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := chi.URLParam(r, "sessionId")
		s, err := d.sessions.Get(sessionID)
		if err != nil {
			renderError(ctx, w, protocol.W3C, sessionID, err)
			return
		}
		renderSuccess(ctx, w, s.Dialect, sessionID, s.Events())
	}
}

// DeleteSessionHandler serves DELETE /session/{sessionId}. Always local,
// never proxied: local table cleanup must happen regardless of downstream
// state. Deleting an absent session still succeeds.
func (d *Dispatcher) DeleteSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := chi.URLParam(r, "sessionId")

		dialect := protocol.W3C
		if s, err := d.sessions.Get(sessionID); err == nil {
			dialect = s.Dialect
		}

		if err := d.sessions.Delete(ctx, sessionID); err != nil {
			renderError(ctx, w, dialect, sessionID, err)
			return
		}
		renderSuccess(ctx, w, dialect, sessionID, nil)
	}
}

// NotFoundHandler renders unknown routes as a protocol error instead of the
// router's plain-text default.
func (d *Dispatcher) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := protocol.NewError(protocol.ErrorUnknownCommand,
			"no command matches "+r.Method+" "+r.URL.Path)
		renderError(r.Context(), w, protocol.W3C, "", err)
	}
}

// MethodNotAllowedHandler renders method mismatches as a protocol error.
func (d *Dispatcher) MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := protocol.NewError(protocol.ErrorUnknownMethod,
			r.Method+" is not allowed on "+r.URL.Path)
		renderError(r.Context(), w, protocol.W3C, "", err)
	}
}
