// Package proxy forwards WebDriver commands to a downstream automation
// server. It rewrites inbound URLs onto the configured target, translates
// "crossing" commands between protocol dialects, and classifies downstream
// responses back into the shared error taxonomy.
package proxy

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/driverhub/driverhub/internal/protocol"
)

// Target describes the downstream server and tracks the current downstream
// session id to substitute into outgoing URLs. The session id is mutable only
// through SetSessionID, by the component that owns the pairing.
type Target struct {
	Scheme   string
	Host     string
	Port     int
	BasePath string

	// Dialect is the downstream's protocol dialect, or empty when unknown,
	// in which case commands pass through untranslated.
	Dialect protocol.Dialect

	mu        sync.RWMutex
	sessionID string
}

// NewTarget builds a Target from its parts. An empty scheme defaults to http.
func NewTarget(scheme, host string, port int, basePath string, dialect protocol.Dialect) *Target {
	if scheme == "" {
		scheme = "http"
	}
	return &Target{
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		BasePath: strings.TrimSuffix(basePath, "/"),
		Dialect:  dialect,
	}
}

// ParseTarget builds a Target from a URL string such as
// "http://127.0.0.1:4444/wd/hub".
func ParseTarget(rawURL string, dialect protocol.Dialect) (*Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, ErrInvalidProxyURL.Msg("cannot parse downstream URL " + rawURL)
	}
	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, ErrInvalidProxyURL.Msg("cannot parse downstream port in " + rawURL)
		}
	}
	if port == 0 {
		if u.Scheme == "https" {
			port = 443
		} else {
			port = 80
		}
	}
	return NewTarget(u.Scheme, u.Hostname(), port, u.Path, dialect), nil
}

// SessionID returns the tracked downstream session id, or empty when no
// pairing exists.
func (t *Target) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

// SetSessionID installs or clears the downstream session id.
func (t *Target) SetSessionID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = id
}

// baseURL returns scheme://host:port/basePath with no trailing slash.
func (t *Target) baseURL() string {
	return fmt.Sprintf("%s://%s:%d%s", t.Scheme, t.Host, t.Port, t.BasePath)
}
