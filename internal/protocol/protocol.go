// Package protocol implements the WebDriver wire-protocol core shared by the
// dispatcher, the session manager, and the downstream proxy: the two protocol
// dialects, the status/error taxonomy with its legacy and W3C encodings, the
// response envelopes, and element-reference key handling.
package protocol

import (
	jsoniter "github.com/json-iterator/go"
)

// jsonit is the package-wide JSON codec. Envelope encoding sits on the hot
// path of every dispatched command.
var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// Dialect identifies which WebDriver dialect a session speaks. It is decided
// once at session creation and fixed for the session's lifetime.
type Dialect string

const (
	// W3C is the standardized WebDriver protocol, envelope {value}.
	W3C Dialect = "W3C"
	// JSONWP is the legacy JSON Wire Protocol, envelope {sessionId, status, value}.
	JSONWP Dialect = "JSONWP"
)

const (
	// W3CElementKey identifies element references in W3C payloads.
	W3CElementKey = "element-6066-11e4-a52e-4f735466cecf"
	// JSONWPElementKey identifies element references in legacy payloads.
	JSONWPElementKey = "ELEMENT"
)

// DetectDialect determines the dialect of a session-creation payload from its
// shape: a payload carrying a "capabilities" object negotiates W3C, anything
// else is treated as legacy.
func DetectDialect(body map[string]any) Dialect {
	if _, ok := body["capabilities"]; ok {
		return W3C
	}
	return JSONWP
}
