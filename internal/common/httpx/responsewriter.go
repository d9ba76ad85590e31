package httpx

import (
	"net/http"
)

// ResponseWriter wraps http.ResponseWriter and tracks whether headers were
// written, so middleware can avoid double-writing error responses.
type ResponseWriter struct {
	http.ResponseWriter
	written bool
	status  int
}

// NewResponseWriter creates a ResponseWriter wrapping w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w}
}

// WriteHeader implements http.ResponseWriter. Repeated calls are no-ops.
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.status = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write implements http.ResponseWriter, defaulting the status to 200.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Written reports whether headers or body were written.
func (rw *ResponseWriter) Written() bool {
	return rw.written
}

// Status returns the status code, or 200 if none was set explicitly.
func (rw *ResponseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// Flush implements http.Flusher if the underlying writer supports it.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
