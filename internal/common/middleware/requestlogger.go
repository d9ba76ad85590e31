// Package middleware provides HTTP middleware for request logging, panic
// recovery, and request timeouts. It integrates with zerolog for structured
// logging and tags every request with a unique request id.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/common/uuid"
)

type requestIdContextKey string

const (
	requestIdKey = requestIdContextKey("requestId")

	// RequestIDHeader is the response header carrying the request id.
	RequestIDHeader = "X-DriverHub-Request-ID"
)

// RequestLogger logs incoming requests and attaches a request-scoped zerolog
// logger, keyed by a fresh request id, to the request context.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		requestID := newRequestId()
		ctx = WithRequestID(ctx, requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)

		w.Header().Set(RequestIDHeader, requestID)

		log.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_ip", r.RemoteAddr).
			Str("proto", r.Proto).
			Msg("incoming request")

		defer func() {
			log.Ctx(ctx).Info().
				Str("duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds())).
				Msg("request completed")
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithRequestID returns a context carrying the given request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIdKey, id)
}

// RequestIDFromContext returns the request id stored by RequestLogger, or an
// empty string if none is present. Proxied commands forward it downstream.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIdKey).(string); ok {
		return id
	}
	return ""
}

func newRequestId() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
}
