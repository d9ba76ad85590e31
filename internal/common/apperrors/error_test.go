package apperrors

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorDerivation(t *testing.T) {
	base := New("protocol error")
	assert.Equal(t, "protocol error", base.Error())
	assert.ErrorIs(t, base, base)

	notFound := base.New("no such element").SetStatusCode(http.StatusNotFound)
	assert.Equal(t, "no such element", notFound.Error())
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode())
	assert.ErrorIs(t, notFound, base)

	reworded := notFound.Msg("no such element: #submit")
	assert.Equal(t, "no such element: #submit", reworded.Error())
	assert.Equal(t, http.StatusNotFound, reworded.StatusCode())
	assert.ErrorIs(t, reworded, notFound)
	assert.ErrorIs(t, reworded, base)
}

func TestErrorAttachment(t *testing.T) {
	base := New("proxy error").SetStatusCode(http.StatusInternalServerError)
	cause := errors.New("connection refused")
	wrapped := base.MsgErr("could not proxy command", cause)

	assert.Equal(t, "could not proxy command", wrapped.Error())
	assert.Contains(t, wrapped.ErrorAll(), "connection refused")
	assert.ErrorIs(t, wrapped, base)
	assert.ErrorIs(t, wrapped, cause)

	more := wrapped.Err(errors.New("downstream returned 502"))
	assert.Equal(t, "could not proxy command", more.Error())
	assert.Contains(t, more.ErrorAll(), "downstream returned 502")
}

func TestStatusCodeCopySemantics(t *testing.T) {
	base := New("session error")
	badReq := base.SetStatusCode(http.StatusBadRequest)

	assert.Equal(t, 0, base.StatusCode())
	assert.Equal(t, http.StatusBadRequest, badReq.StatusCode())
	assert.ErrorIs(t, badReq, base)
}
