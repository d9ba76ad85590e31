// Package httpx provides HTTP plumbing shared by the driverhub server:
// JSON content-type detection for request bodies, a write-tracking
// ResponseWriter used by middleware, and a bare error shape for failures
// that happen before a request reaches the protocol layer.
package httpx

import (
	"net/http"
	"strings"
)

// IsJSONContent reports whether the request should be treated as JSON. A
// missing Content-Type is treated as JSON by default.
func IsJSONContent(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	return strings.HasPrefix(ct, "application/json")
}
