package session

import (
	"net/http"

	"github.com/driverhub/driverhub/internal/common/apperrors"
)

var (
	ErrSessionError apperrors.Error = apperrors.New("session error").SetStatusCode(http.StatusInternalServerError)

	// ErrNoSuchSession is returned for lookups of ids that are absent from
	// the table, whether never created, already deleted, or expired.
	ErrNoSuchSession apperrors.Error = ErrSessionError.New("no such session").SetStatusCode(http.StatusNotFound)

	// ErrSessionExpired is the cancellation cause installed when the watchdog
	// force-deletes an idle session.
	ErrSessionExpired apperrors.Error = ErrSessionError.New("session expired: no command received within the new-command timeout").SetStatusCode(http.StatusNotFound)
)
