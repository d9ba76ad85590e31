// Package relay provides the built-in driver used when driverhub runs as a
// pure protocol gateway: every session is paired with a session on the
// configured downstream server and every command is forwarded there.
package relay

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/protocol"
	"github.com/driverhub/driverhub/internal/proxy"
	"github.com/driverhub/driverhub/pkg/driver"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// Driver relays sessions and commands to one downstream automation server.
type Driver struct {
	target *proxy.Target
	client *proxy.Client

	mu       sync.RWMutex
	pairings map[string]string // local session id -> downstream session id
}

var _ driver.Driver = (*Driver)(nil)
var _ driver.Proxier = (*Driver)(nil)

// New creates a relay driver for the downstream server at rawURL speaking
// the given dialect.
func New(rawURL string, dialect protocol.Dialect) (*Driver, error) {
	target, err := proxy.ParseTarget(rawURL, dialect)
	if err != nil {
		return nil, err
	}
	return &Driver{
		target:   target,
		client:   proxy.NewClient(target),
		pairings: make(map[string]string),
	}, nil
}

// Constraints declares none; the downstream server validates capabilities
// its own way on session creation.
func (d *Driver) Constraints() driver.ConstraintSet {
	return nil
}

// WaitReady polls the downstream /status endpoint until it answers.
func (d *Driver) WaitReady(ctx context.Context, attempts uint) error {
	return d.client.WaitReady(ctx, attempts)
}

// CreateSession opens a downstream session with the accepted capabilities,
// shaped for the downstream's dialect, and records the pairing.
func (d *Driver) CreateSession(ctx context.Context, sessionID string, caps map[string]any) (map[string]any, error) {
	var payload map[string]any
	if d.target.Dialect == protocol.JSONWP {
		payload = map[string]any{"desiredCapabilities": caps}
	} else {
		payload = map[string]any{
			"capabilities": map[string]any{"alwaysMatch": caps},
		}
	}
	body, err := jsonit.Marshal(payload)
	if err != nil {
		return nil, proxy.ErrProxyRequestFailed.Msg("cannot encode session request: " + err.Error())
	}

	res, err := d.client.Command(ctx, "POST", "/session", body)
	if err != nil {
		return nil, err
	}
	if res.SessionID == "" {
		return nil, proxy.ErrProxyRequestFailed.Msg("downstream did not return a session id")
	}

	d.mu.Lock()
	d.pairings[sessionID] = res.SessionID
	d.mu.Unlock()
	log.Ctx(ctx).Info().Str("session_id", sessionID).
		Str("downstream_session_id", res.SessionID).Msg("paired downstream session")

	if downstreamCaps, ok := res.Value.(map[string]any); ok {
		if inner, ok := downstreamCaps["capabilities"].(map[string]any); ok {
			return inner, nil
		}
		return downstreamCaps, nil
	}
	return nil, nil
}

// DeleteSession closes the downstream session and forgets the pairing. A
// missing pairing is fine; the local table is the source of truth.
func (d *Driver) DeleteSession(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	downstreamID, ok := d.pairings[sessionID]
	delete(d.pairings, sessionID)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := d.sessionClient(downstreamID).Command(ctx, "DELETE", "/session/"+downstreamID, nil)
	return err
}

// ExecuteCommand never runs locally; the relay forwards everything through
// the proxy path. A command that reaches here was vetoed by an avoid rule
// the relay does not define.
func (d *Driver) ExecuteCommand(ctx context.Context, sessionID, command string, params map[string]any) (any, error) {
	return nil, protocol.NewError(protocol.ErrorUnknownCommand,
		"command "+command+" cannot run locally on a relay session")
}

func (d *Driver) CanProxy(sessionID string) bool { return true }

func (d *Driver) ProxyActive(sessionID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.pairings[sessionID]
	return ok
}

func (d *Driver) GetProxyAvoidList(sessionID string) [][]string {
	return nil
}

func (d *Driver) ProxyInfo(sessionID string) *driver.ProxyInfo {
	d.mu.RLock()
	downstreamID, ok := d.pairings[sessionID]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	return &driver.ProxyInfo{
		Scheme:              d.target.Scheme,
		Host:                d.target.Host,
		Port:                d.target.Port,
		BasePath:            d.target.BasePath,
		Dialect:             string(d.target.Dialect),
		DownstreamSessionID: downstreamID,
	}
}

// sessionClient returns a client whose target tracks the given downstream
// session id. The shared target stays id-free; pairings are per session.
func (d *Driver) sessionClient(downstreamID string) *proxy.Client {
	t := proxy.NewTarget(d.target.Scheme, d.target.Host, d.target.Port, d.target.BasePath, d.target.Dialect)
	t.SetSessionID(downstreamID)
	return proxy.NewClient(t)
}
