package httpx

import (
	"encoding/json"
	"net/http"
)

// Error represents a bare HTTP error response with status code and
// description. It is the fallback shape for failures that happen before a
// request can be associated with a protocol dialect.
type Error struct {
	Description string `json:"description"`
	StatusCode  int    `json:"http_status_code"`
}

type errorRsp struct {
	Value errorValue `json:"value"`
}

type errorValue struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Send writes the error response to w as a W3C-shaped error body. Errors
// rendered before dialect resolution use the W3C shape since it is the
// protocol default.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rsp := &errorRsp{
		Value: errorValue{
			Error:   "unknown error",
			Message: e.Description,
		},
	}
	body, err := json.Marshal(rsp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("unable to render error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	w.Write(body)
}

// Error returns the error description.
func (e *Error) Error() string {
	return e.Description
}

// ErrApplicationError returns an error for application-level failures.
// If no message is provided, a default message is used.
func ErrApplicationError(msg ...string) *Error {
	s := "unable to process request"
	if len(msg) > 0 {
		s = msg[0]
	}
	return &Error{
		Description: s,
		StatusCode:  http.StatusInternalServerError,
	}
}

// ErrRequestTimeout returns an error for request timeout.
func ErrRequestTimeout() *Error {
	return &Error{
		Description: "request timed out",
		StatusCode:  http.StatusRequestTimeout,
	}
}
