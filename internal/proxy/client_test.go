package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverhub/driverhub/internal/common/middleware"
	"github.com/driverhub/driverhub/internal/protocol"
)

func newTestTarget(t *testing.T, srv *httptest.Server, dialect protocol.Dialect) *Target {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NewTarget(u.Scheme, u.Hostname(), port, "/wd/hub", dialect)
}

func TestRewriteURL(t *testing.T) {
	target := NewTarget("http", "127.0.0.1", 4444, "/wd/hub", protocol.W3C)
	target.SetSessionID("downstream-1")
	c := NewClient(target)

	tests := []struct {
		name     string
		incoming string
		want     string
	}{
		{
			name:     "session-relative with inbound id spliced out",
			incoming: "/session/upstream-9/url",
			want:     "http://127.0.0.1:4444/wd/hub/session/downstream-1/url",
		},
		{
			name:     "absolute URL rebased onto the target",
			incoming: "https://other.example:9999/hub/session/upstream-9/element/abc/click",
			want:     "http://127.0.0.1:4444/wd/hub/session/downstream-1/element/abc/click",
		},
		{
			name:     "sessionless status",
			incoming: "/status",
			want:     "http://127.0.0.1:4444/wd/hub/status",
		},
		{
			name:     "sessionless session creation",
			incoming: "/session",
			want:     "http://127.0.0.1:4444/wd/hub/session",
		},
		{
			name:     "bare session delete keeps the downstream id",
			incoming: "/session/upstream-9",
			want:     "http://127.0.0.1:4444/wd/hub/session/downstream-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.RewriteURL(tt.incoming)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteURLWithoutDownstreamSession(t *testing.T) {
	target := NewTarget("http", "127.0.0.1", 4444, "", protocol.W3C)
	c := NewClient(target)

	_, err := c.RewriteURL("/session/upstream-9/url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downstream session is not set")

	// Sessionless endpoints still proxy.
	got, err := c.RewriteURL("/status")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:4444/status", got)
}

func TestParseTarget(t *testing.T) {
	tgt, err := ParseTarget("http://127.0.0.1:4723/wd/hub", protocol.JSONWP)
	require.NoError(t, err)
	assert.Equal(t, 4723, tgt.Port)
	assert.Equal(t, "/wd/hub", tgt.BasePath)

	tgt, err = ParseTarget("https://grid.example", protocol.W3C)
	require.NoError(t, err)
	assert.Equal(t, 443, tgt.Port)

	_, err = ParseTarget("://nope", protocol.W3C)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Run("plain success", func(t *testing.T) {
		rsp, err := classify(http.StatusOK, []byte(`{"value":{"ready":true}}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rsp.StatusCode)
		assert.Equal(t, map[string]any{"ready": true}, rsp.Value)
	})

	t.Run("2xx with nonzero legacy status is an error", func(t *testing.T) {
		body := `{"sessionId":"d1","status":7,"value":{"message":"element missing"}}`
		_, err := classify(http.StatusOK, []byte(body))
		require.Error(t, err)
		var perr *protocol.Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, protocol.ErrorNoSuchElement, perr.Kind)
		assert.Equal(t, http.StatusNotFound, perr.HTTPStatus)
		assert.JSONEq(t, body, string(perr.LegacyPayload))
	})

	t.Run("w3c error with known kind passes through", func(t *testing.T) {
		body := `{"value":{"error":"stale element reference","message":"gone","stacktrace":"trace"}}`
		_, err := classify(http.StatusNotFound, []byte(body))
		var perr *protocol.Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, protocol.ErrorStaleElementRef, perr.Kind)
		assert.Equal(t, http.StatusNotFound, perr.HTTPStatus)
		assert.Equal(t, "gone", perr.Message)
		assert.Equal(t, "trace", perr.Stacktrace)
	})

	t.Run("w3c error with unknown kind becomes unknown error", func(t *testing.T) {
		body := `{"value":{"error":"totally made up","message":"huh"}}`
		_, err := classify(http.StatusInternalServerError, []byte(body))
		var perr *protocol.Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, protocol.ErrorUnknownError, perr.Kind)
		assert.Equal(t, "huh", perr.Message)
	})

	t.Run("legacy-shaped error with http error status", func(t *testing.T) {
		body := `{"status":13,"value":{"message":"boom"}}`
		_, err := classify(http.StatusInternalServerError, []byte(body))
		var perr *protocol.Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, protocol.ErrorUnknownError, perr.Kind)
		assert.JSONEq(t, body, string(perr.LegacyPayload))
	})

	t.Run("unrecognized body wraps as proxy failure", func(t *testing.T) {
		_, err := classify(http.StatusBadGateway, []byte(`<html>nginx</html>`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrProxyRequestFailed))
		var perr *protocol.Error
		assert.False(t, errors.As(err, &perr))
	})
}

func TestCommandAgainstServer(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"http://example.com/"}`))
	}))
	defer srv.Close()

	target := newTestTarget(t, srv, protocol.W3C)
	target.SetSessionID("d42")
	c := NewClient(target)

	rsp, err := c.Command(context.Background(), http.MethodGet, "/session/up-1/url", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/", rsp.Value)
	assert.Equal(t, "/wd/hub/session/d42/url", gotPath.Load())
}

func TestCommandTransportFailure(t *testing.T) {
	target := NewTarget("http", "127.0.0.1", 1, "", protocol.W3C)
	c := NewClient(target)

	_, err := c.Command(context.Background(), http.MethodGet, "/status", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProxyRequestFailed))
	assert.Contains(t, err.Error(), "could not proxy command to the remote server")
}

func TestWaitReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("starting"))
			return
		}
		_, _ = w.Write([]byte(`{"value":{"ready":true}}`))
	}))
	defer srv.Close()

	target := newTestTarget(t, srv, protocol.W3C)
	c := NewClient(target)

	require.NoError(t, c.WaitReady(context.Background(), 5))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCommandForwardsRequestID(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get(middleware.RequestIDHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":null}`))
	}))
	defer srv.Close()

	target := newTestTarget(t, srv, protocol.W3C)
	target.SetSessionID("d42")
	c := NewClient(target)

	ctx := middleware.WithRequestID(context.Background(), "req-123")
	_, err := c.Command(ctx, http.MethodGet, "/session/up-1/url", nil)
	require.NoError(t, err)
	assert.Equal(t, "req-123", got.Load())
}
