package proxy

import (
	"context"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/driverhub/driverhub/internal/protocol"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// Converter rewrites crossing commands — commands whose argument shape or URL
// differs between dialects — before handing them to the proxy client. When
// the downstream dialect is unknown, everything passes through untouched.
type Converter struct {
	client *Client
}

// NewConverter creates a converter bound to a proxy client.
func NewConverter(client *Client) *Converter {
	return &Converter{client: client}
}

// Client returns the underlying proxy client.
func (cv *Converter) Client() *Client {
	return cv.client
}

// Proxy forwards one command downstream, applying argument-shape or URL-shape
// translation when the command crosses dialects. Argument-shape crossings
// bypass the URL-shape table entirely.
func (cv *Converter) Proxy(ctx context.Context, command, method, incomingURL string, body []byte) (*Result, error) {
	dialect := cv.client.Target().Dialect
	if dialect == "" {
		return cv.client.Command(ctx, method, incomingURL, body)
	}

	switch command {
	case "setTimeouts":
		return cv.proxyTimeouts(ctx, method, incomingURL, body)
	case "setWindow", "switchToWindow":
		return cv.client.Command(ctx, method, incomingURL, mirrorKeys(body, "name", "handle"))
	case "setValue", "sendKeys":
		return cv.client.Command(ctx, method, incomingURL, convertValueText(body))
	case "performActions", "releaseActions":
		return cv.client.Command(ctx, method, incomingURL, duplicateElementKeysRaw(body))
	case "setFrame":
		return cv.client.Command(ctx, method, incomingURL, duplicateFrameID(body))
	}

	if rule, ok := urlRules[command]; ok {
		rewrite := rule.toW3C
		if dialect == protocol.JSONWP {
			rewrite = rule.toJSONWP
		}
		if rewritten := rewrite(incomingURL); rewritten != incomingURL {
			return cv.client.Command(ctx, method, rewritten, body)
		}
		log.Ctx(ctx).Debug().Str("command", command).Str("url", incomingURL).
			Msg("url-shape rule did not apply, proxying unchanged")
	}
	return cv.client.Command(ctx, method, incomingURL, body)
}

// timeoutFanout lists the W3C timeout names in the order they fan out to
// legacy downstreams, with their legacy type strings.
var timeoutFanout = []struct {
	w3cName    string
	legacyType string
}{
	{"script", "script"},
	{"pageLoad", "page load"},
	{"implicit", "implicit"},
}

// proxyTimeouts handles the timeouts crossing. One W3C request carrying up to
// three named timeouts fans out into sequential legacy type+ms calls,
// short-circuiting on the first error response. A legacy request against a
// W3C downstream collapses the type+ms pair into the named-timeouts shape.
func (cv *Converter) proxyTimeouts(ctx context.Context, method, incomingURL string, body []byte) (*Result, error) {
	dialect := cv.client.Target().Dialect
	parsed := gjson.ParseBytes(body)

	if dialect == protocol.JSONWP {
		var last *Result
		fannedOut := false
		for _, entry := range timeoutFanout {
			v := parsed.Get(entry.w3cName)
			if !v.Exists() {
				continue
			}
			fannedOut = true
			sub, err := sjson.SetBytes([]byte(`{}`), "type", entry.legacyType)
			if err != nil {
				return nil, ErrProxyRequestFailed.Msg("cannot build timeouts body: " + err.Error())
			}
			sub, err = sjson.SetBytes(sub, "ms", v.Value())
			if err != nil {
				return nil, ErrProxyRequestFailed.Msg("cannot build timeouts body: " + err.Error())
			}
			rsp, err := cv.client.Command(ctx, method, incomingURL, sub)
			if err != nil {
				// Short-circuit: remaining timeouts are not sent.
				return nil, err
			}
			last = rsp
		}
		if fannedOut {
			return last, nil
		}
		// Already legacy-shaped, pass through.
		return cv.client.Command(ctx, method, incomingURL, body)
	}

	// W3C downstream: collapse a legacy {type, ms} pair if present.
	typ := parsed.Get("type")
	ms := parsed.Get("ms")
	if typ.Exists() && ms.Exists() {
		name := typ.String()
		if name == "page load" {
			name = "pageLoad"
		}
		converted, err := sjson.SetBytes([]byte(`{}`), name, ms.Value())
		if err != nil {
			return nil, ErrProxyRequestFailed.Msg("cannot build timeouts body: " + err.Error())
		}
		return cv.client.Command(ctx, method, incomingURL, converted)
	}
	return cv.client.Command(ctx, method, incomingURL, body)
}

// mirrorKeys derives each of the two keys from the other when only one is
// present. When both are present the body is left untouched.
func mirrorKeys(body []byte, a, b string) []byte {
	av := gjson.GetBytes(body, a)
	bv := gjson.GetBytes(body, b)
	switch {
	case av.Exists() && !bv.Exists():
		out, err := sjson.SetBytes(body, b, av.Value())
		if err == nil {
			return out
		}
	case bv.Exists() && !av.Exists():
		out, err := sjson.SetBytes(body, a, bv.Value())
		if err == nil {
			return out
		}
	}
	return body
}

// convertValueText derives value from text or vice versa for the element
// send-keys crossing. W3C sends text as a string; legacy sends value as an
// array of single-character strings. When both are present the body is left
// untouched.
func convertValueText(body []byte) []byte {
	text := gjson.GetBytes(body, "text")
	value := gjson.GetBytes(body, "value")

	switch {
	case text.Exists() && !value.Exists():
		chars := make([]string, 0, len(text.String()))
		for _, r := range text.String() {
			chars = append(chars, string(r))
		}
		out, err := sjson.SetBytes(body, "value", chars)
		if err == nil {
			return out
		}
	case value.Exists() && !text.Exists():
		var sb strings.Builder
		if value.IsArray() {
			for _, part := range value.Array() {
				sb.WriteString(part.String())
			}
		} else {
			sb.WriteString(value.String())
		}
		out, err := sjson.SetBytes(body, "text", sb.String())
		if err == nil {
			return out
		}
	}
	return body
}

// duplicateElementKeysRaw duplicates element-identifier keys throughout a raw
// JSON body so either dialect can read the references.
func duplicateElementKeysRaw(body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	var decoded any
	if err := jsonit.Unmarshal(body, &decoded); err != nil {
		return body
	}
	out, err := jsonit.Marshal(protocol.DuplicateElementKeys(decoded))
	if err != nil {
		return body
	}
	return out
}

// duplicateFrameID duplicates element-identifier keys inside the id field of
// a frame-switch body when the id is an object.
func duplicateFrameID(body []byte) []byte {
	id := gjson.GetBytes(body, "id")
	if !id.IsObject() {
		return body
	}
	out, err := sjson.SetBytes(body, "id", protocol.DuplicateElementKeys(id.Value()))
	if err != nil {
		return body
	}
	return out
}

type urlRule struct {
	toJSONWP func(string) string // rewrite for a legacy downstream
	toW3C    func(string) string // rewrite for a W3C downstream
}

func regexRewrite(pattern, replacement string) func(string) string {
	re := regexp.MustCompile(pattern)
	return func(u string) string {
		return re.ReplaceAllString(u, replacement)
	}
}

func identity(u string) string { return u }

// urlRules is the URL-shape crossing table: commands whose endpoint path
// differs between dialects. The property→attribute rewrite applies only in
// the legacy direction; W3C downstreams see property URLs unchanged.
var urlRules = map[string]urlRule{
	"execute": {
		toJSONWP: regexRewrite(`/execute/sync$`, "/execute"),
		toW3C:    regexRewrite(`/execute$`, "/execute/sync"),
	},
	"executeAsync": {
		toJSONWP: regexRewrite(`/execute/async$`, "/execute_async"),
		toW3C:    regexRewrite(`/execute_async$`, "/execute/async"),
	},
	"getElementScreenshot": {
		toJSONWP: regexRewrite(`/element/([^/]+)/screenshot$`, "/screenshot/$1"),
		toW3C:    regexRewrite(`/screenshot/([^/]+)$`, "/element/$1/screenshot"),
	},
	"getWindowHandle": {
		toJSONWP: regexRewrite(`/window$`, "/window_handle"),
		toW3C:    regexRewrite(`/window_handle$`, "/window"),
	},
	"getWindowHandles": {
		toJSONWP: regexRewrite(`/window/handles$`, "/window_handles"),
		toW3C:    regexRewrite(`/window_handles$`, "/window/handles"),
	},
	"getProperty": {
		toJSONWP: regexRewrite(`/property/([^/]+)$`, "/attribute/$1"),
		toW3C:    identity,
	},
}
