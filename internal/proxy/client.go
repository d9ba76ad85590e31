package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/driverhub/driverhub/internal/common/middleware"
	"github.com/driverhub/driverhub/internal/protocol"
)

// Result is a successfully proxied command result: the downstream HTTP status
// and the decoded value field of its response envelope. SessionID carries the
// downstream session id when the response announces one, as session-creation
// responses do in either dialect.
type Result struct {
	StatusCode int
	Value      any
	SessionID  string
}

// Client issues commands against a downstream target and translates the
// outcome back into the shared taxonomy.
type Client struct {
	target     *Target
	httpClient *http.Client
}

// NewClient creates a proxy client bound to the given target. The HTTP client
// has no global timeout; per-request deadlines come from the context so the
// watchdog's disarm path is never starved by a hung downstream.
func NewClient(target *Target) *Client {
	return &Client{
		target:     target,
		httpClient: &http.Client{},
	}
}

// Target returns the client's downstream target.
func (c *Client) Target() *Target {
	return c.target
}

// sessionless endpoints that proxy without a downstream session id.
func isSessionless(p string) bool {
	return p == "/status" || p == "/session" || p == "/sessions"
}

// RewriteURL turns a same-server-relative or other-server-absolute incoming
// URL into a fully qualified downstream URL with the tracked downstream
// session id spliced in.
func (c *Client) RewriteURL(incoming string) (string, error) {
	u, err := url.Parse(incoming)
	if err != nil {
		return "", ErrInvalidProxyURL.Msg("cannot parse incoming URL " + incoming)
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	// Strip anything before the protocol endpoint; an absolute URL keeps its
	// path but loses scheme/host/port/base in favor of the target's.
	if i := strings.Index(p, "/session"); i >= 0 {
		p = p[i:]
	} else if i := strings.Index(p, "/status"); i >= 0 {
		p = p[i:]
	}

	if isSessionless(p) {
		return c.target.baseURL() + p, nil
	}

	tail := p
	if rest, ok := strings.CutPrefix(p, "/session/"); ok {
		// Replace the inbound session-id segment.
		tail = ""
		if _, after, found := strings.Cut(rest, "/"); found {
			tail = "/" + after
		}
	}
	if tail != "" && !strings.HasPrefix(tail, "/") {
		tail = "/" + tail
	}

	sid := c.target.SessionID()
	if sid == "" {
		return "", ErrSessionNotSet.Msg("cannot proxy session-scoped URL " + incoming + ": downstream session is not set")
	}
	return c.target.baseURL() + "/session/" + sid + tail, nil
}

// Command proxies one command: rewrites the URL, issues the HTTP call, and
// classifies the response. A non-nil error is either a protocol error carried
// back from the downstream or a transport-level proxy failure.
func (c *Client) Command(ctx context.Context, method, incomingURL string, body []byte) (*Result, error) {
	target, err := c.RewriteURL(incomingURL)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, target, body)
}

func (c *Client) do(ctx context.Context, method, fullURL string, body []byte) (*Result, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, ErrProxyRequestFailed.Msg("cannot build downstream request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if rid := middleware.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(middleware.RequestIDHeader, rid)
	}

	log.Ctx(ctx).Debug().Str("method", method).Str("url", fullURL).Msg("proxying command")

	rsp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ErrProxyRequestFailed.Msg("could not proxy command to the remote server; original error: " + err.Error())
	}
	defer rsp.Body.Close()

	raw, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, ErrProxyRequestFailed.Msg("cannot read downstream response: " + err.Error())
	}
	return classify(rsp.StatusCode, raw)
}

// classify interprets a downstream response. A 2xx with a legacy-shaped body
// whose status is nonzero is an error despite the HTTP success and is
// re-mapped onto the correct HTTP status. A 4xx/5xx W3C-shaped body passes
// through after its error string is validated against the taxonomy.
func classify(statusCode int, raw []byte) (*Result, error) {
	parsed := gjson.ParseBytes(raw)

	if statusCode < 400 {
		legacyStatus := parsed.Get("status")
		if legacyStatus.Exists() && legacyStatus.Int() != protocol.StatusSuccess {
			msg := parsed.Get("value.message").String()
			perr := protocol.ErrorFromLegacyCode(int(legacyStatus.Int()), msg)
			perr.LegacyPayload = json.RawMessage(raw)
			return nil, perr
		}
		var value any
		if v := parsed.Get("value"); v.Exists() {
			value = v.Value()
		}
		sid := parsed.Get("sessionId").String()
		if sid == "" {
			sid = parsed.Get("value.sessionId").String()
		}
		return &Result{StatusCode: statusCode, Value: value, SessionID: sid}, nil
	}

	if v := parsed.Get("value"); v.IsObject() {
		if errStr := v.Get("error"); errStr.Exists() {
			kind := errStr.String()
			if !protocol.IsKnownKind(kind) {
				kind = protocol.ErrorUnknownError
			}
			perr := protocol.NewError(kind, v.Get("message").String())
			perr.HTTPStatus = statusCode
			perr.Stacktrace = v.Get("stacktrace").String()
			return nil, perr
		}
		// Legacy-shaped error with an HTTP error status.
		if legacyStatus := parsed.Get("status"); legacyStatus.Exists() {
			perr := protocol.ErrorFromLegacyCode(int(legacyStatus.Int()), v.Get("message").String())
			perr.LegacyPayload = json.RawMessage(raw)
			return nil, perr
		}
	}
	return nil, ErrProxyRequestFailed.Msg("downstream returned HTTP " +
		http.StatusText(statusCode) + " with an unrecognized body: " + truncate(string(raw), 512))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// WaitReady polls the downstream /status endpoint with backoff until it
// answers or the attempts are exhausted. Used before pairing the first
// downstream session.
func (c *Client) WaitReady(ctx context.Context, attempts uint) error {
	statusURL := c.target.baseURL() + "/status"
	return retry.Do(func() error {
		_, err := c.do(ctx, http.MethodGet, statusURL, nil)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Uint("attempt", n+1).Err(err).Msg("downstream not ready")
		}),
	)
}
