package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Legacy numeric status codes from the JSON Wire Protocol.
const (
	StatusSuccess            = 0
	StatusNoSuchDriver       = 6
	StatusNoSuchElement      = 7
	StatusNoSuchFrame        = 8
	StatusUnknownCommand     = 9
	StatusStaleElementRef    = 10
	StatusUnknownError       = 13
	StatusJavaScriptError    = 17
	StatusTimeout            = 21
	StatusNoSuchWindow       = 23
	StatusUnexpectedAlert    = 26
	StatusNoAlertOpen        = 27
	StatusScriptTimeout      = 28
	StatusInvalidSelector    = 32
	StatusSessionNotCreated  = 33
	StatusMoveTargetOOB      = 34
	StatusNotYetImplemented  = 405
	StatusInvalidArgument    = 61
	StatusNoSuchContext      = 35
	StatusElementNotVisible  = 11
	StatusInvalidElementSt   = 12
	StatusInvalidCookieDmn   = 24
	StatusUnableToSetCookie  = 25
	StatusInvalidCoordinates = 29
)

// StatusSummary pairs a legacy status code with its human-readable summary.
type StatusSummary struct {
	Code    int    `json:"code"`
	Summary string `json:"summary"`
}

// defaultSummary is returned for any code the taxonomy does not know.
const defaultSummary = "An error occurred"

var statusSummaries = map[int]StatusSummary{
	StatusSuccess:            {StatusSuccess, "The command executed successfully."},
	StatusNoSuchDriver:       {StatusNoSuchDriver, "A session is either terminated or not started."},
	StatusNoSuchElement:      {StatusNoSuchElement, "An element could not be located on the page using the given search parameters."},
	StatusNoSuchFrame:        {StatusNoSuchFrame, "A request to switch to a frame could not be satisfied because the frame could not be found."},
	StatusUnknownCommand:     {StatusUnknownCommand, "The requested resource could not be found, or a request was received using an HTTP method that is not supported by the mapped resource."},
	StatusStaleElementRef:    {StatusStaleElementRef, "An element command failed because the referenced element is no longer attached to the DOM."},
	StatusElementNotVisible:  {StatusElementNotVisible, "An element command could not be completed because the element is not visible on the page."},
	StatusInvalidElementSt:   {StatusInvalidElementSt, "An element command could not be completed because the element is in an invalid state."},
	StatusUnknownError:       {StatusUnknownError, "An unknown server-side error occurred while processing the command."},
	StatusJavaScriptError:    {StatusJavaScriptError, "An error occurred while executing user supplied JavaScript."},
	StatusTimeout:            {StatusTimeout, "An operation did not complete before its timeout expired."},
	StatusNoSuchWindow:       {StatusNoSuchWindow, "A request to switch to a different window could not be satisfied because the window could not be found."},
	StatusInvalidCookieDmn:   {StatusInvalidCookieDmn, "An illegal attempt was made to set a cookie under a different domain than the current page."},
	StatusUnableToSetCookie:  {StatusUnableToSetCookie, "A request to set a cookie's value could not be satisfied."},
	StatusUnexpectedAlert:    {StatusUnexpectedAlert, "A modal dialog was open, blocking this operation."},
	StatusNoAlertOpen:        {StatusNoAlertOpen, "An attempt was made to operate on a modal dialog when one was not open."},
	StatusScriptTimeout:      {StatusScriptTimeout, "A script did not complete before its timeout expired."},
	StatusInvalidCoordinates: {StatusInvalidCoordinates, "The coordinates provided to an interactions operation are invalid."},
	StatusInvalidSelector:    {StatusInvalidSelector, "Argument was an invalid selector."},
	StatusSessionNotCreated:  {StatusSessionNotCreated, "A new session could not be created."},
	StatusMoveTargetOOB:      {StatusMoveTargetOOB, "Target provided for a move action is out of bounds."},
	StatusNoSuchContext:      {StatusNoSuchContext, "No such context found."},
}

// SummaryForCode returns the human summary for a legacy status code. The code
// may be a number or a numeric string; unrecognized or unparsable codes yield
// a fixed generic summary. It never fails.
func SummaryForCode(code any) string {
	var n int
	switch v := code.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return defaultSummary
		}
		n = parsed
	default:
		return defaultSummary
	}
	if s, ok := statusSummaries[n]; ok {
		return s.Summary
	}
	return defaultSummary
}

// W3C error strings.
const (
	ErrorInvalidArgument      = "invalid argument"
	ErrorNoSuchElement        = "no such element"
	ErrorNoSuchFrame          = "no such frame"
	ErrorNoSuchWindow         = "no such window"
	ErrorNoSuchContext        = "no such context"
	ErrorStaleElementRef      = "stale element reference"
	ErrorUnknownCommand       = "unknown command"
	ErrorUnknownError         = "unknown error"
	ErrorUnknownMethod        = "unknown method"
	ErrorUnsupportedOperation = "unsupported operation"
	ErrorNotYetImplemented    = "not yet implemented"
	ErrorTimeout              = "timeout"
	ErrorScriptTimeout        = "script timeout"
	ErrorInvalidSessionID     = "invalid session id"
	ErrorSessionNotCreated    = "session not created"
	ErrorInvalidSelector      = "invalid selector"
	ErrorUnexpectedAlertOpen  = "unexpected alert open"
	ErrorNoSuchAlert          = "no such alert"
	ErrorMoveTargetOOB        = "move target out of bounds"
	ErrorJavaScriptError      = "javascript error"
	ErrorUnableToSetCookie    = "unable to set cookie"
	ErrorNoSuchCookie         = "no such cookie"
	ErrorElementNotVisible    = "element not interactable"
	ErrorInvalidElementState  = "invalid element state"
)

// Error is the tagged protocol error crossing the dispatcher boundary. The
// dialect-specific rendering is a pure function of its fields, independent of
// where the error originated.
type Error struct {
	Kind       string // W3C error string
	Message    string
	HTTPStatus int
	LegacyCode int

	// Stacktrace is carried into W3C error bodies when a proxied downstream
	// supplied one.
	Stacktrace string

	// LegacyPayload holds an already-formatted legacy error body to pass
	// through verbatim when proxying. Set only on proxy-request errors.
	LegacyPayload json.RawMessage
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// kindTable maps W3C error strings to their default HTTP status and legacy
// numeric code.
var kindTable = map[string]struct {
	httpStatus int
	legacyCode int
}{
	ErrorInvalidArgument:      {http.StatusBadRequest, StatusInvalidArgument},
	ErrorNoSuchElement:        {http.StatusNotFound, StatusNoSuchElement},
	ErrorNoSuchFrame:          {http.StatusNotFound, StatusNoSuchFrame},
	ErrorNoSuchWindow:         {http.StatusNotFound, StatusNoSuchWindow},
	ErrorNoSuchContext:        {http.StatusNotFound, StatusNoSuchContext},
	ErrorStaleElementRef:      {http.StatusNotFound, StatusStaleElementRef},
	ErrorUnknownCommand:       {http.StatusNotFound, StatusUnknownCommand},
	ErrorUnknownError:         {http.StatusInternalServerError, StatusUnknownError},
	ErrorUnknownMethod:        {http.StatusMethodNotAllowed, StatusUnknownCommand},
	ErrorUnsupportedOperation: {http.StatusInternalServerError, StatusUnknownError},
	ErrorNotYetImplemented:    {http.StatusMethodNotAllowed, StatusNotYetImplemented},
	ErrorTimeout:              {http.StatusInternalServerError, StatusTimeout},
	ErrorScriptTimeout:        {http.StatusInternalServerError, StatusScriptTimeout},
	ErrorInvalidSessionID:     {http.StatusNotFound, StatusNoSuchDriver},
	ErrorSessionNotCreated:    {http.StatusInternalServerError, StatusSessionNotCreated},
	ErrorInvalidSelector:      {http.StatusBadRequest, StatusInvalidSelector},
	ErrorUnexpectedAlertOpen:  {http.StatusInternalServerError, StatusUnexpectedAlert},
	ErrorNoSuchAlert:          {http.StatusNotFound, StatusNoAlertOpen},
	ErrorMoveTargetOOB:        {http.StatusInternalServerError, StatusMoveTargetOOB},
	ErrorJavaScriptError:      {http.StatusInternalServerError, StatusJavaScriptError},
	ErrorUnableToSetCookie:    {http.StatusInternalServerError, StatusUnableToSetCookie},
	ErrorNoSuchCookie:         {http.StatusNotFound, StatusUnknownError},
	ErrorElementNotVisible:    {http.StatusBadRequest, StatusElementNotVisible},
	ErrorInvalidElementState:  {http.StatusBadRequest, StatusInvalidElementSt},
}

// NewError creates a tagged protocol error for the given W3C error kind. An
// unrecognized kind falls back to "unknown error" while preserving the
// message.
func NewError(kind, message string) *Error {
	entry, ok := kindTable[kind]
	if !ok {
		kind = ErrorUnknownError
		entry = kindTable[ErrorUnknownError]
	}
	return &Error{
		Kind:       kind,
		Message:    message,
		HTTPStatus: entry.httpStatus,
		LegacyCode: entry.legacyCode,
	}
}

// IsKnownKind reports whether the given W3C error string is part of the
// taxonomy.
func IsKnownKind(kind string) bool {
	_, ok := kindTable[kind]
	return ok
}

// legacyToKind resolves the preferred W3C kind when a legacy code maps to
// more than one.
var legacyToKind = map[int]string{
	StatusNoSuchDriver:       ErrorInvalidSessionID,
	StatusNoSuchElement:      ErrorNoSuchElement,
	StatusNoSuchFrame:        ErrorNoSuchFrame,
	StatusUnknownCommand:     ErrorUnknownCommand,
	StatusStaleElementRef:    ErrorStaleElementRef,
	StatusElementNotVisible:  ErrorElementNotVisible,
	StatusInvalidElementSt:   ErrorInvalidElementState,
	StatusUnknownError:       ErrorUnknownError,
	StatusJavaScriptError:    ErrorJavaScriptError,
	StatusTimeout:            ErrorTimeout,
	StatusNoSuchWindow:       ErrorNoSuchWindow,
	StatusUnableToSetCookie:  ErrorUnableToSetCookie,
	StatusUnexpectedAlert:    ErrorUnexpectedAlertOpen,
	StatusNoAlertOpen:        ErrorNoSuchAlert,
	StatusScriptTimeout:      ErrorScriptTimeout,
	StatusInvalidSelector:    ErrorInvalidSelector,
	StatusSessionNotCreated:  ErrorSessionNotCreated,
	StatusMoveTargetOOB:      ErrorMoveTargetOOB,
	StatusNoSuchContext:      ErrorNoSuchContext,
	StatusNotYetImplemented:  ErrorNotYetImplemented,
	StatusInvalidArgument:    ErrorInvalidArgument,
	StatusInvalidCoordinates: ErrorInvalidArgument,
}

// ErrorFromLegacyCode creates a tagged protocol error from a legacy numeric
// status code, as returned by JSONWP downstreams.
func ErrorFromLegacyCode(code int, message string) *Error {
	if message == "" {
		message = SummaryForCode(code)
	}
	kind, ok := legacyToKind[code]
	if !ok {
		e := NewError(ErrorUnknownError, message)
		e.LegacyCode = code
		return e
	}
	e := NewError(kind, message)
	e.LegacyCode = code
	return e
}

// NewProxyRequestError wraps a downstream failure that already produced a
// formatted legacy error body. The payload is passed through verbatim when
// the upstream session speaks the legacy dialect.
func NewProxyRequestError(message string, legacyPayload json.RawMessage) *Error {
	return &Error{
		Kind:          ErrorUnknownError,
		Message:       message,
		HTTPStatus:    http.StatusInternalServerError,
		LegacyCode:    StatusUnknownError,
		LegacyPayload: legacyPayload,
	}
}
