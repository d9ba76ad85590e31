package dispatch

import (
	"net/http"

	"github.com/driverhub/driverhub/internal/common/apperrors"
)

var (
	ErrDispatchError apperrors.Error = apperrors.New("dispatch error").SetStatusCode(http.StatusInternalServerError)

	// ErrMalformedAvoidEntry marks a bad (method, pathRegex) pair in the
	// driver's avoid-proxy list. Validated at dispatch time; a malformed
	// entry fails the request rather than being skipped.
	ErrMalformedAvoidEntry apperrors.Error = ErrDispatchError.New("malformed avoid-proxy entry")
)
