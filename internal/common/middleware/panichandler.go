package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/common/httpx"
)

// PanicHandler recovers from panics in HTTP handlers. The panic and its stack
// trace are logged and a generic error response is returned to the client so
// one bad request cannot take the dispatcher down.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				log.Ctx(r.Context()).Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("stack_trace", string(debug.Stack())).
					Msg("panic occurred")

				if !rw.Written() {
					httpx.ErrApplicationError("unable to process request").Send(rw)
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
