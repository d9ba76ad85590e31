package proxy

import (
	"net/http"

	"github.com/driverhub/driverhub/internal/common/apperrors"
)

var (
	ErrProxyError apperrors.Error = apperrors.New("proxy error").SetStatusCode(http.StatusInternalServerError)

	// ErrProxyRequestFailed marks transport-level failures: the downstream
	// was unreachable or returned something unparsable. Distinguishable from
	// a proxied application error, which arrives as a protocol error.
	ErrProxyRequestFailed apperrors.Error = ErrProxyError.New("could not proxy command to the remote server")

	// ErrSessionNotSet is returned when a session-scoped URL is proxied
	// before a downstream session id has been paired.
	ErrSessionNotSet apperrors.Error = ErrProxyError.New("downstream session is not set")

	ErrInvalidProxyURL apperrors.Error = ErrProxyError.New("invalid proxy URL").SetStatusCode(http.StatusBadRequest)
)
