// Package dispatch resolves inbound WebDriver requests against the route
// table, extracts declared parameters, decides between local execution and
// downstream proxying, and renders dialect-correct response envelopes.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/common/httpx"
	"github.com/driverhub/driverhub/internal/protocol"
	"github.com/driverhub/driverhub/internal/proxy"
	"github.com/driverhub/driverhub/internal/session"
	"github.com/driverhub/driverhub/pkg/driver"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// Dispatcher executes commands against the driver or forwards them
// downstream, per session.
type Dispatcher struct {
	drv      driver.Driver
	sessions *session.Manager

	// IdempotencyHeader is the request header whose value keys idempotent
	// session creation.
	IdempotencyHeader string

	convMu     sync.Mutex
	converters map[string]*proxy.Converter
}

// New creates a dispatcher over the driver and session manager. The converter
// cache is keyed by session id, so the dispatcher subscribes to session
// removal; watchdog expiries and driver shutdowns evict the same way an
// explicit delete does.
func New(drv driver.Driver, sessions *session.Manager, idempotencyHeader string) *Dispatcher {
	d := &Dispatcher{
		drv:               drv,
		sessions:          sessions,
		IdempotencyHeader: idempotencyHeader,
		converters:        make(map[string]*proxy.Converter),
	}
	sessions.OnRemove(d.dropConverter)
	return d
}

// CommandHandler builds the http.HandlerFunc for one route-table entry.
func (d *Dispatcher) CommandHandler(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := chi.URLParam(r, "sessionId")

		s, err := d.sessions.Get(sessionID)
		if err != nil {
			// No session, no dialect; W3C is the rendering default.
			renderError(ctx, w, protocol.W3C, sessionID, err)
			return
		}
		dialect := s.Dialect

		raw, body, err := readBody(r)
		if err != nil {
			renderError(ctx, w, dialect, sessionID, err)
			return
		}

		params, err := extractParams(r, route, body)
		if err != nil {
			renderError(ctx, w, dialect, sessionID, err)
			return
		}

		cmdCtx, cancel := s.CommandContext(ctx)
		defer cancel()

		proxied, err := d.shouldProxy(route, r, sessionID)
		if err != nil {
			renderError(ctx, w, dialect, sessionID, err)
			return
		}

		var value any
		if proxied {
			value, err = d.proxyCommand(cmdCtx, route, r, sessionID, raw)
		} else {
			value, err = d.drv.ExecuteCommand(cmdCtx, sessionID, route.Command, params)
		}
		if err != nil {
			// A session terminated mid-command surfaces its cause, not a
			// bare context cancellation.
			if cause := context.Cause(cmdCtx); cause != nil && !errors.Is(cause, context.Canceled) {
				err = cause
			}
			renderError(ctx, w, dialect, sessionID, err)
			return
		}

		d.sessions.Touch(sessionID)
		renderSuccess(ctx, w, dialect, sessionID, value)
	}
}

// shouldProxy decides whether the command leaves for the downstream server.
// deleteSession never proxies. The driver's avoid list vetoes per
// (method, pathRegex) pair; a malformed entry is a server error.
func (d *Dispatcher) shouldProxy(route Route, r *http.Request, sessionID string) (bool, error) {
	if route.Command == "deleteSession" {
		return false, nil
	}
	p, ok := d.drv.(driver.Proxier)
	if !ok || !p.CanProxy(sessionID) || !p.ProxyActive(sessionID) {
		return false, nil
	}
	for i, entry := range p.GetProxyAvoidList(sessionID) {
		if len(entry) != 2 {
			return false, ErrMalformedAvoidEntry.Msg(
				fmt.Sprintf("avoid-proxy entry %d must be a (method, pathRegex) pair", i))
		}
		method, pattern := entry[0], entry[1]
		if !validHTTPMethod(method) {
			return false, ErrMalformedAvoidEntry.Msg(
				fmt.Sprintf("avoid-proxy entry %d has invalid HTTP method %q", i, method))
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, ErrMalformedAvoidEntry.Msg(
				fmt.Sprintf("avoid-proxy entry %d has invalid path pattern %q", i, pattern))
		}
		if strings.EqualFold(method, r.Method) && re.MatchString(r.URL.Path) {
			return false, nil
		}
	}
	return true, nil
}

func validHTTPMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead:
		return true
	}
	return false
}

func (d *Dispatcher) proxyCommand(ctx context.Context, route Route, r *http.Request, sessionID string, raw []byte) (any, error) {
	conv, err := d.converterFor(sessionID)
	if err != nil {
		return nil, err
	}
	res, err := conv.Proxy(ctx, route.Command, r.Method, r.URL.Path, raw)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// converterFor returns the session's proxy converter, building it from the
// driver's pairing on first use. The downstream session id is refreshed on
// every call; drivers may re-pair mid-session.
func (d *Dispatcher) converterFor(sessionID string) (*proxy.Converter, error) {
	p, ok := d.drv.(driver.Proxier)
	if !ok {
		return nil, proxy.ErrProxyError.Msg("driver cannot proxy")
	}
	info := p.ProxyInfo(sessionID)
	if info == nil {
		return nil, proxy.ErrProxyError.Msg("driver reports no downstream pairing for session " + sessionID)
	}

	d.convMu.Lock()
	defer d.convMu.Unlock()
	conv, ok := d.converters[sessionID]
	if !ok {
		target := proxy.NewTarget(info.Scheme, info.Host, info.Port, info.BasePath, protocol.Dialect(info.Dialect))
		conv = proxy.NewConverter(proxy.NewClient(target))
		d.converters[sessionID] = conv
	}
	conv.Client().Target().SetSessionID(info.DownstreamSessionID)
	return conv, nil
}

func (d *Dispatcher) dropConverter(sessionID string) {
	d.convMu.Lock()
	delete(d.converters, sessionID)
	d.convMu.Unlock()
}

// readBody returns the raw body bytes and their decoded object form. An
// empty body decodes as an empty object; unparsable JSON is a client error.
func readBody(r *http.Request) ([]byte, map[string]any, error) {
	if r.Body == nil {
		return nil, map[string]any{}, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, protocol.NewError(protocol.ErrorInvalidArgument, "could not read request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, map[string]any{}, nil
	}
	// A missing Content-Type counts as JSON; clients routinely omit it.
	if !httpx.IsJSONContent(r) {
		return nil, nil, protocol.NewError(protocol.ErrorInvalidArgument,
			"request bodies must be JSON; got content type "+r.Header.Get("Content-Type"))
	}
	body := map[string]any{}
	if err := jsonit.Unmarshal(raw, &body); err != nil {
		return nil, nil, protocol.NewError(protocol.ErrorInvalidArgument, "could not parse request body as JSON object")
	}
	return raw, body, nil
}

// extractParams resolves the route's declared parameters with fixed
// precedence: custom URL params, then the element-id URL param, then the
// session id, then body fields. Required parameters missing from every
// source are a client error naming the field; optional ones resolve to nil.
func extractParams(r *http.Request, route Route, body map[string]any) (map[string]any, error) {
	params := make(map[string]any)
	declared := make([]string, 0, len(route.Required)+len(route.Optional))
	declared = append(declared, route.Required...)
	declared = append(declared, route.Optional...)

	for _, name := range declared {
		if v := chi.URLParam(r, name); v != "" {
			params[name] = v
		}
	}
	if eid := chi.URLParam(r, "elementId"); eid != "" {
		params["elementId"] = eid
	}
	if sid := chi.URLParam(r, "sessionId"); sid != "" {
		params["sessionId"] = sid
	}
	for _, name := range declared {
		if _, ok := params[name]; ok {
			continue
		}
		if v, ok := body[name]; ok {
			params[name] = v
		}
	}

	for _, name := range route.Required {
		if v, ok := params[name]; !ok || v == nil {
			return nil, protocol.NewError(protocol.ErrorInvalidArgument,
				fmt.Sprintf("missing required parameter '%s'", name))
		}
	}
	for _, name := range route.Optional {
		if _, ok := params[name]; !ok {
			params[name] = nil
		}
	}
	return params, nil
}

func renderSuccess(ctx context.Context, w http.ResponseWriter, dialect protocol.Dialect, sessionID string, value any) {
	body, err := protocol.RenderSuccess(dialect, sessionID, value)
	if err != nil {
		renderError(ctx, w, dialect, sessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func renderError(ctx context.Context, w http.ResponseWriter, dialect protocol.Dialect, sessionID string, err error) {
	log.Ctx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("command failed")
	status, body := protocol.RenderError(dialect, sessionID, err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
