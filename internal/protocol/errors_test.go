package protocol

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryForCode(t *testing.T) {
	t.Run("numeric code", func(t *testing.T) {
		assert.Equal(t, "A new session could not be created.", SummaryForCode(33))
	})
	t.Run("numeric string", func(t *testing.T) {
		assert.Equal(t, "A new session could not be created.", SummaryForCode("33"))
	})
	t.Run("float from decoded json", func(t *testing.T) {
		assert.Equal(t, "An operation did not complete before its timeout expired.", SummaryForCode(float64(21)))
	})
	t.Run("unknown code", func(t *testing.T) {
		assert.Equal(t, "An error occurred", SummaryForCode(999))
	})
	t.Run("garbage string", func(t *testing.T) {
		assert.Equal(t, "An error occurred", SummaryForCode("not-a-number"))
	})
	t.Run("unsupported type", func(t *testing.T) {
		assert.Equal(t, "An error occurred", SummaryForCode(struct{}{}))
	})
}

func TestNewError(t *testing.T) {
	err := NewError(ErrorNoSuchElement, "cannot find #submit")
	assert.Equal(t, ErrorNoSuchElement, err.Kind)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Equal(t, StatusNoSuchElement, err.LegacyCode)
	assert.Equal(t, "no such element: cannot find #submit", err.Error())
}

func TestNewErrorUnknownKind(t *testing.T) {
	err := NewError("made up kind", "boom")
	assert.Equal(t, ErrorUnknownError, err.Kind)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.Equal(t, StatusUnknownError, err.LegacyCode)
	assert.Equal(t, "boom", err.Message)
}

func TestErrorFromLegacyCode(t *testing.T) {
	err := ErrorFromLegacyCode(7, "")
	assert.Equal(t, ErrorNoSuchElement, err.Kind)
	assert.Equal(t, "An element could not be located on the page using the given search parameters.", err.Message)

	err = ErrorFromLegacyCode(6, "terminated")
	assert.Equal(t, ErrorInvalidSessionID, err.Kind)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)

	err = ErrorFromLegacyCode(999, "strange")
	assert.Equal(t, ErrorUnknownError, err.Kind)
	assert.Equal(t, 999, err.LegacyCode)
}

func TestIsKnownKind(t *testing.T) {
	assert.True(t, IsKnownKind(ErrorStaleElementRef))
	assert.False(t, IsKnownKind("definitely not an error kind"))
}
