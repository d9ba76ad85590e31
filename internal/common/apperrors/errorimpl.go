package apperrors

import (
	"errors"
	"strings"
)

type appError struct {
	msg        string
	base       error
	attached   []error
	statusCode int
}

// New creates a root-level error with the given message. Packages declare
// their sentinel errors with New and derive request-specific errors from them.
func New(msg string) Error {
	return &appError{msg: msg}
}

func (e *appError) Error() string {
	return e.msg
}

// ErrorAll returns the message followed by every attached error, separated
// by "; ". The base template is skipped so messages do not repeat themselves.
func (e *appError) ErrorAll() string {
	if len(e.attached) == 0 {
		return e.msg
	}
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.attached {
		if err == e.base {
			continue
		}
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *appError) Unwrap() error {
	return e.base
}

func (e *appError) UnwrapAll() []error {
	return e.attached
}

// New derives a fresh error with the receiver as its base. The derived error
// inherits the status code and matches the receiver under errors.Is.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statusCode: e.statusCode,
	}
}

// Msg rewords the error while wrapping the original so callers can still
// match the template.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		attached:   append([]error{e}, e.attached...),
		statusCode: e.statusCode,
	}
}

// MsgErr rewords the error and attaches the given underlying errors.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:        msg,
		base:       e,
		attached:   append([]error{e}, errs...),
		statusCode: e.statusCode,
	}
}

// Err attaches underlying errors while keeping the current message.
func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:        e.msg,
		base:       e,
		attached:   append([]error{e}, errs...),
		statusCode: e.statusCode,
	}
}

// SetStatusCode returns a copy carrying the given HTTP status code.
func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statusCode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statusCode
}

// Is matches the base chain and every attached error.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.attached {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
