// Package apperrors provides the error values used across driverhub. Errors
// are immutable templates that carry an HTTP status code and can be refined
// with more specific messages while remaining matchable with errors.Is.
package apperrors

// Error is the application error interface. It extends the standard error
// interface with status-code management and hierarchical derivation. All
// derivation methods return a new Error; the receiver is never mutated.
type Error interface {
	error
	Unwrap() error // supports errors.Is / errors.As

	New(msg string) Error                  // derives a fresh error with the receiver as base
	Msg(msg string) Error                  // rewords the error, wrapping the original
	MsgErr(msg string, err ...error) Error // rewords and attaches underlying errors
	Err(err ...error) Error                // attaches underlying errors, keeping the message
	SetStatusCode(int) Error               // returns a copy with the given HTTP status
	StatusCode() int                       // HTTP status carried by this error
	ErrorAll() string                      // message including all attached errors
	UnwrapAll() []error                    // all attached errors, in attachment order
}
