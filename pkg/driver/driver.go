// Package driver defines the contract between the driverhub protocol core
// and driver implementations. The dispatcher and session manager never assume
// a concrete driver beyond this surface.
package driver

import (
	"context"
)

// Constraint declares the validation rules a driver imposes on one capability
// name. All constraints for a name are evaluated and their errors accumulate;
// Deprecated only logs a warning.
type Constraint struct {
	Presence  bool
	IsString  bool
	IsNumber  bool
	IsBoolean bool
	IsObject  bool
	IsArray   bool

	Inclusion                []any
	InclusionCaseInsensitive []string

	Deprecated bool
}

// ConstraintSet maps capability names to constraint records.
type ConstraintSet map[string]Constraint

// Driver is the command surface a driver exposes to the protocol core.
type Driver interface {
	// Constraints returns the driver's capability constraints. The built-in
	// required constraints are enforced in addition to these.
	Constraints() ConstraintSet

	// CreateSession starts a driver session for the already-negotiated
	// capability set. The returned map may enrich the accepted capabilities
	// (device info, derived settings); returning nil keeps them as-is.
	CreateSession(ctx context.Context, sessionID string, caps map[string]any) (map[string]any, error)

	// DeleteSession tears down driver state for the session. Errors are
	// logged by the session manager but never block table removal.
	DeleteSession(ctx context.Context, sessionID string) error

	// ExecuteCommand runs a named command with its extracted parameters and
	// returns the raw result value.
	ExecuteCommand(ctx context.Context, sessionID string, command string, params map[string]any) (any, error)
}

// ProxyInfo describes a session's downstream pairing.
type ProxyInfo struct {
	Scheme   string // http or https
	Host     string
	Port     int
	BasePath string // downstream base path prefix, usually "" or "/wd/hub"

	// Dialect is the downstream's protocol dialect ("W3C", "JSONWP"), or
	// empty when not yet known, in which case commands pass through
	// untranslated.
	Dialect string

	// DownstreamSessionID is the paired session id on the downstream server.
	DownstreamSessionID string
}

// Proxier is implemented by drivers that can hand commands to a downstream
// automation server instead of executing them locally.
type Proxier interface {
	// CanProxy reports whether this driver supports proxying at all for the
	// session.
	CanProxy(sessionID string) bool

	// ProxyActive reports whether commands for the session should currently
	// be forwarded downstream.
	ProxyActive(sessionID string) bool

	// GetProxyAvoidList returns ordered (httpMethod, pathRegex) pairs that
	// veto proxying for matching requests. Entries are validated at dispatch
	// time; a malformed entry fails the request rather than being ignored.
	GetProxyAvoidList(sessionID string) [][]string

	// ProxyInfo returns the downstream pairing for the session, or nil when
	// there is none.
	ProxyInfo(sessionID string) *ProxyInfo
}

// ShutdownNotifier is implemented by drivers that can die outside the
// request/response cycle. The session manager registers a callback to fail
// in-flight commands and terminate affected sessions.
type ShutdownNotifier interface {
	OnUnexpectedShutdown(fn func(sessionID string, err error))
}
