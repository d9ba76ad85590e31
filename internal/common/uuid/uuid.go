// Package uuid wraps github.com/google/uuid and defaults to UUIDv7 so that
// identifiers generated by driverhub (session ids, request ids) sort by
// creation time.
package uuid

import (
	"github.com/google/uuid"
)

// UUID is aliased from github.com/google/uuid.UUID.
type UUID = uuid.UUID

// Nil is the zero UUID.
var Nil = uuid.Nil

// New returns a new UUIDv7. Panics if generation fails.
func New() UUID {
	u, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return u
}

// NewRandom returns a new UUIDv7 and any error encountered during generation.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// NewString returns the string form of a new UUIDv7.
func NewString() string {
	return New().String()
}

// Parse parses a UUID string. Returns an error if the string is not a valid UUID.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}
