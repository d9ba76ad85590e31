package protocol

import (
	"net/http"

	"github.com/driverhub/driverhub/internal/common/apperrors"
)

// legacyEnvelope is the JSONWP response wrapper.
type legacyEnvelope struct {
	SessionID string `json:"sessionId"`
	Status    int    `json:"status"`
	Value     any    `json:"value"`
}

// w3cEnvelope is the W3C response wrapper. No top-level status or sessionId.
type w3cEnvelope struct {
	Value any `json:"value"`
}

type w3cErrorValue struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
}

// RenderSuccess encodes a successful command result in the envelope of the
// given dialect. A nil value renders as JSON null. Element references in W3C
// responses get the W3C identifier key added alongside the legacy one,
// recursively, so legacy driver output stays readable by W3C clients.
func RenderSuccess(dialect Dialect, sessionID string, value any) ([]byte, error) {
	if dialect == W3C {
		return jsonit.Marshal(&w3cEnvelope{Value: DuplicateElementKeys(value)})
	}
	return jsonit.Marshal(&legacyEnvelope{
		SessionID: sessionID,
		Status:    StatusSuccess,
		Value:     value,
	})
}

// RenderError classifies err through the taxonomy and encodes the
// dialect-appropriate error envelope. It returns the HTTP status to send and
// the response body. Unknown errors render as "unknown error" with the
// original message preserved.
func RenderError(dialect Dialect, sessionID string, err error) (int, []byte) {
	perr := Classify(err)

	if dialect == JSONWP {
		if perr.LegacyPayload != nil {
			// Downstream already produced a formatted legacy body.
			return perr.HTTPStatus, perr.LegacyPayload
		}
		body, merr := jsonit.Marshal(&legacyEnvelope{
			SessionID: sessionID,
			Status:    perr.LegacyCode,
			Value:     map[string]any{"message": perr.Message},
		})
		if merr != nil {
			return http.StatusInternalServerError, []byte(`{"status":13,"value":{"message":"unable to render error"}}`)
		}
		return perr.HTTPStatus, body
	}

	body, merr := jsonit.Marshal(&w3cEnvelope{Value: &w3cErrorValue{
		Error:      perr.Kind,
		Message:    perr.Message,
		Stacktrace: perr.Stacktrace,
	}})
	if merr != nil {
		return http.StatusInternalServerError, []byte(`{"value":{"error":"unknown error","message":"unable to render error"}}`)
	}
	return perr.HTTPStatus, body
}

// Classify turns any error into a tagged protocol error. Protocol errors pass
// through unchanged; application errors keep their HTTP status where one maps
// onto the taxonomy; everything else becomes "unknown error".
func Classify(err error) *Error {
	if perr, ok := err.(*Error); ok {
		return perr
	}
	if appErr, ok := err.(apperrors.Error); ok {
		kind := ErrorUnknownError
		switch appErr.StatusCode() {
		case http.StatusBadRequest:
			kind = ErrorInvalidArgument
		case http.StatusNotFound:
			kind = ErrorInvalidSessionID
		case http.StatusMethodNotAllowed:
			kind = ErrorUnknownMethod
		}
		return NewError(kind, appErr.ErrorAll())
	}
	return NewError(ErrorUnknownError, err.Error())
}
