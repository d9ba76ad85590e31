package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/driverhub/driverhub/internal/protocol"
	"github.com/driverhub/driverhub/internal/session"
	"github.com/driverhub/driverhub/pkg/driver"
)

func testRouter(d *Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.NotFound(d.NotFoundHandler())
	r.MethodNotAllowed(d.MethodNotAllowedHandler())
	r.Get("/status", d.StatusHandler("test"))
	r.Post("/session", d.CreateSessionHandler())
	r.Get("/sessions", d.GetSessionsHandler())
	r.Get("/session/{sessionId}", d.GetSessionHandler())
	r.Delete("/session/{sessionId}", d.DeleteSessionHandler())
	r.Get("/session/{sessionId}/events", d.GetEventsHandler())
	for _, rt := range Routes {
		r.MethodFunc(rt.Method, rt.Pattern, d.CommandHandler(rt))
	}
	return r
}

func newFixture(drv driver.Driver) (*Dispatcher, http.Handler) {
	mgr := session.NewManager(drv, time.Minute)
	d := New(drv, mgr, "X-Idempotency-Key")
	return d, testRouter(d)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createW3CSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/session",
		`{"capabilities":{"alwaysMatch":{"platformName":"iOS"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := gjson.Get(rec.Body.String(), "value.sessionId").String()
	require.NotEmpty(t, id)
	return id
}

func createLegacySession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/session",
		`{"desiredCapabilities":{"platformName":"Android"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := gjson.Get(rec.Body.String(), "sessionId").String()
	require.NotEmpty(t, id)
	return id
}

func TestProtocolAppropriateRendering(t *testing.T) {
	drv := &driver.Fake{
		ExecuteFn: func(ctx context.Context, id, cmd string, params map[string]any) (any, error) {
			return "http://example.com/", nil
		},
	}
	_, h := newFixture(drv)

	t.Run("w3c envelope", func(t *testing.T) {
		id := createW3CSession(t, h)
		rec := doJSON(t, h, http.MethodGet, "/session/"+id+"/url", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Equal(t, "http://example.com/", gjson.Get(body, "value").String())
		assert.False(t, gjson.Get(body, "status").Exists())
		assert.False(t, gjson.Get(body, "sessionId").Exists())
	})
	t.Run("legacy envelope", func(t *testing.T) {
		id := createLegacySession(t, h)
		rec := doJSON(t, h, http.MethodGet, "/session/"+id+"/url", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Equal(t, "http://example.com/", gjson.Get(body, "value").String())
		assert.Equal(t, int64(0), gjson.Get(body, "status").Int())
		assert.Equal(t, id, gjson.Get(body, "sessionId").String())
	})
}

func TestElementKeysDuplicatedIntoW3CResponse(t *testing.T) {
	drv := &driver.Fake{
		ExecuteFn: func(ctx context.Context, id, cmd string, params map[string]any) (any, error) {
			return []any{map[string]any{"ELEMENT": "el-1"}}, nil
		},
	}
	_, h := newFixture(drv)
	id := createW3CSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/session/"+id+"/elements",
		`{"using":"css selector","value":".item"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "el-1", gjson.Get(body, "value.0.ELEMENT").String())
	assert.Equal(t, "el-1", gjson.Get(body, `value.0.element-6066-11e4-a52e-4f735466cecf`).String())
}

func TestRequiredParameterMissing(t *testing.T) {
	_, h := newFixture(&driver.Fake{})
	id := createW3CSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/session/"+id+"/url", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	body := rec.Body.String()
	assert.Equal(t, "invalid argument", gjson.Get(body, "value.error").String())
	assert.Contains(t, gjson.Get(body, "value.message").String(), "missing required parameter 'url'")
}

func TestParameterExtraction(t *testing.T) {
	var got map[string]any
	var mu sync.Mutex
	drv := &driver.Fake{
		ExecuteFn: func(ctx context.Context, id, cmd string, params map[string]any) (any, error) {
			mu.Lock()
			got = params
			mu.Unlock()
			return nil, nil
		},
	}
	_, h := newFixture(drv)
	id := createW3CSession(t, h)

	t.Run("url params win over body, ids always present", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/session/"+id+"/element/el-9/attribute/title", "")
		require.Equal(t, http.StatusOK, rec.Code)
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "title", got["name"])
		assert.Equal(t, "el-9", got["elementId"])
		assert.Equal(t, id, got["sessionId"])
	})

	t.Run("optional absent resolves to nil", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/session/"+id+"/element/el-9/value", `{"text":"hi"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "hi", got["text"])
		v, present := got["value"]
		assert.True(t, present)
		assert.Nil(t, v)
	})
}

func TestNonJSONBodyRejected(t *testing.T) {
	_, h := newFixture(&driver.Fake{})
	id := createW3CSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/session/"+id+"/url",
		`{"url":"http://example.com/"}`, "Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid argument", gjson.Get(rec.Body.String(), "value.error").String())

	// A missing Content-Type counts as JSON.
	rec = doJSON(t, h, http.MethodPost, "/session/"+id+"/url", `{"url":"http://example.com/"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingSessionIs404(t *testing.T) {
	_, h := newFixture(&driver.Fake{})

	rec := doJSON(t, h, http.MethodGet, "/session/ghost/url", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "invalid session id", gjson.Get(rec.Body.String(), "value.error").String())
}

func TestUnknownRouteAndMethod(t *testing.T) {
	_, h := newFixture(&driver.Fake{})

	rec := doJSON(t, h, http.MethodGet, "/bogus", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown command", gjson.Get(rec.Body.String(), "value.error").String())

	rec = doJSON(t, h, http.MethodPut, "/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "unknown method", gjson.Get(rec.Body.String(), "value.error").String())
}

func TestUnknownHandlerErrorRendersAs500(t *testing.T) {
	drv := &driver.Fake{
		ExecuteFn: func(ctx context.Context, id, cmd string, params map[string]any) (any, error) {
			return nil, errors.New("engine exploded")
		},
	}
	_, h := newFixture(drv)
	id := createW3CSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/session/"+id+"/url", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "unknown error", gjson.Get(body, "value.error").String())
	assert.Contains(t, gjson.Get(body, "value.message").String(), "engine exploded")
}

func TestIdempotencyHeaderCollapsesDuplicates(t *testing.T) {
	_, h := newFixture(&driver.Fake{})
	payload := `{"capabilities":{"alwaysMatch":{"platformName":"iOS"}}}`

	a := doJSON(t, h, http.MethodPost, "/session", payload, "X-Idempotency-Key", "k1")
	b := doJSON(t, h, http.MethodPost, "/session", payload, "X-Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, a.Code)
	require.Equal(t, http.StatusOK, b.Code)
	assert.Equal(t,
		gjson.Get(a.Body.String(), "value.sessionId").String(),
		gjson.Get(b.Body.String(), "value.sessionId").String())
}

func TestDeleteSessionIdempotentOverHTTP(t *testing.T) {
	_, h := newFixture(&driver.Fake{})
	id := createW3CSession(t, h)

	rec := doJSON(t, h, http.MethodDelete, "/session/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodDelete, "/session/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	_, h := newFixture(&driver.Fake{})
	id := createW3CSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/session/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "iOS", gjson.Get(rec.Body.String(), "value.platformName").String())

	rec = doJSON(t, h, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, gjson.Get(rec.Body.String(), "value.0.id").String())

	rec = doJSON(t, h, http.MethodGet, "/session/"+id+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "value.commands").IsArray())

	rec = doJSON(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "value.ready").Bool())
}

func proxyFixture(t *testing.T, downstream http.HandlerFunc, avoid [][]string) (*driver.ProxyFake, http.Handler, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		downstream(w, r)
	}))
	t.Cleanup(srv.Close)

	host, port := splitHostPort(t, srv.Listener.Addr().String())
	drv := &driver.ProxyFake{
		CanProxyValue:    true,
		ProxyActiveValue: true,
		AvoidList:        avoid,
		Info: &driver.ProxyInfo{
			Scheme:              "http",
			Host:                host,
			Port:                port,
			Dialect:             string(protocol.W3C),
			DownstreamSessionID: "down-1",
		},
	}
	_, h := newFixture(drv)
	return drv, h, func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(paths))
		copy(out, paths)
		return out
	}
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestProxyDecision(t *testing.T) {
	downstream := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"downstream says hi"}`))
	}

	t.Run("active proxy forwards", func(t *testing.T) {
		_, h, paths := proxyFixture(t, downstream, nil)
		id := createW3CSession(t, h)

		rec := doJSON(t, h, http.MethodGet, "/session/"+id+"/url", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "downstream says hi", gjson.Get(rec.Body.String(), "value").String())
		require.Len(t, paths(), 1)
		assert.Equal(t, "/session/down-1/url", paths()[0])
	})

	t.Run("avoid list vetoes proxying", func(t *testing.T) {
		executed := false
		drv, h, paths := proxyFixture(t, downstream, [][]string{{"GET", "/url$"}})
		drv.ExecuteFn = func(ctx context.Context, id, cmd string, params map[string]any) (any, error) {
			executed = true
			return "local", nil
		}
		id := createW3CSession(t, h)

		rec := doJSON(t, h, http.MethodGet, "/session/"+id+"/url", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "local", gjson.Get(rec.Body.String(), "value").String())
		assert.True(t, executed)
		assert.Empty(t, paths())
	})

	t.Run("malformed avoid entry is a 500", func(t *testing.T) {
		_, h, _ := proxyFixture(t, downstream, [][]string{{"GET"}})
		id := createW3CSession(t, h)

		rec := doJSON(t, h, http.MethodGet, "/session/"+id+"/url", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "unknown error", gjson.Get(rec.Body.String(), "value.error").String())
	})

	t.Run("delete session never proxied", func(t *testing.T) {
		drv, h, paths := proxyFixture(t, downstream, nil)
		id := createW3CSession(t, h)

		rec := doJSON(t, h, http.MethodDelete, "/session/"+id, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, drv.Deleted(), id)
		assert.Empty(t, paths())
	})
}

func TestConverterEvictedOnSessionRemoval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":null}`))
	}))
	t.Cleanup(srv.Close)
	host, port := splitHostPort(t, srv.Listener.Addr().String())

	drv := &driver.ProxyFake{
		CanProxyValue:    true,
		ProxyActiveValue: true,
		Info: &driver.ProxyInfo{
			Scheme:              "http",
			Host:                host,
			Port:                port,
			Dialect:             string(protocol.W3C),
			DownstreamSessionID: "down-1",
		},
	}
	mgr := session.NewManager(drv, 100*time.Millisecond)
	d := New(drv, mgr, "")
	h := testRouter(d)

	id := createW3CSession(t, h)
	rec := doJSON(t, h, http.MethodGet, "/session/"+id+"/url", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	d.convMu.Lock()
	_, cached := d.converters[id]
	d.convMu.Unlock()
	require.True(t, cached)

	// The watchdog removal must evict the cache entry, not just an explicit
	// delete.
	assert.Eventually(t, func() bool {
		d.convMu.Lock()
		defer d.convMu.Unlock()
		_, ok := d.converters[id]
		return !ok
	}, time.Second, 10*time.Millisecond)
	_, err := mgr.Get(id)
	assert.Error(t, err)
}
