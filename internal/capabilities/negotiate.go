package capabilities

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/protocol"
)

// VendorPrefix is the extension-capability prefix stripped during
// negotiation.
const VendorPrefix = "appium:"

// standardCaps is the W3C standard capability allowlist. Unprefixed keys
// outside this list are dropped with a warning.
var standardCaps = map[string]bool{
	"browserName":               true,
	"browserVersion":            true,
	"platformName":              true,
	"platformVersion":           true,
	"acceptInsecureCerts":       true,
	"pageLoadStrategy":          true,
	"proxy":                     true,
	"setWindowRect":             true,
	"timeouts":                  true,
	"strictFileInteractability": true,
	"unhandledPromptBehavior":   true,
	"webSocketUrl":              true,
}

// Request is the W3C capabilities request shape.
type Request struct {
	AlwaysMatch map[string]any   `json:"alwaysMatch"`
	FirstMatch  []map[string]any `json:"firstMatch"`
}

// ParseRequest extracts the W3C capabilities request from a decoded
// session-creation payload. A payload whose "capabilities" entry is not a
// plain object is rejected with a session-not-created error.
func ParseRequest(payload map[string]any) (*Request, error) {
	raw, ok := payload["capabilities"]
	if !ok {
		return nil, protocol.NewError(protocol.ErrorSessionNotCreated,
			"capabilities request must contain a 'capabilities' object")
	}
	if err := validateShape(raw); err != nil {
		return nil, err
	}
	obj := raw.(map[string]any)

	req := &Request{}
	if am, ok := obj["alwaysMatch"].(map[string]any); ok {
		req.AlwaysMatch = am
	}
	if fm, ok := obj["firstMatch"].([]any); ok {
		for _, entry := range fm {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, protocol.NewError(protocol.ErrorSessionNotCreated,
					"every firstMatch entry must be a plain object")
			}
			req.FirstMatch = append(req.FirstMatch, m)
		}
	}
	return req, nil
}

// Negotiate merges and validates a capabilities request against the driver's
// constraint set, returning the single accepted capability set. The built-in
// required constraints apply even when the driver declares none.
func Negotiate(req *Request, driverConstraints ConstraintSet) (map[string]any, error) {
	constraints := mergeConstraintSets(driverConstraints, requiredConstraints)

	candidates := req.FirstMatch
	if len(candidates) == 0 {
		candidates = []map[string]any{{}}
	}

	var lastErrs []string
	for _, fm := range candidates {
		merged, ok := mergeCaps(req.AlwaysMatch, fm)
		if !ok {
			log.Warn().Msg("firstMatch entry conflicts with alwaysMatch, skipping candidate")
			continue
		}
		stripped := stripPrefixes(merged)
		accepted, errs := applyConstraints(stripped, constraints)
		if len(errs) == 0 {
			warnOddVersions(accepted)
			return accepted, nil
		}
		lastErrs = errs
	}

	if len(lastErrs) == 0 {
		return nil, protocol.NewError(protocol.ErrorSessionNotCreated,
			"could not merge capabilities: every firstMatch entry conflicts with alwaysMatch")
	}
	sort.Strings(lastErrs)
	return nil, protocol.NewError(protocol.ErrorSessionNotCreated,
		fmt.Sprintf("invalid capabilities: %s", strings.Join(lastErrs, "; ")))
}

// NegotiateLegacy validates a legacy desiredCapabilities object against the
// constraint set. Legacy requests carry no alwaysMatch/firstMatch structure
// and no vendor prefixes; the constraint and coercion rules are the same.
func NegotiateLegacy(desired map[string]any, driverConstraints ConstraintSet) (map[string]any, error) {
	constraints := mergeConstraintSets(driverConstraints, requiredConstraints)
	accepted, errs := applyConstraints(desired, constraints)
	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, protocol.NewError(protocol.ErrorSessionNotCreated,
			fmt.Sprintf("invalid capabilities: %s", strings.Join(errs, "; ")))
	}
	warnOddVersions(accepted)
	return accepted, nil
}

// mergeCaps merges alwaysMatch with one firstMatch entry. A key present in
// both is a merge failure and the candidate is skipped.
func mergeCaps(always, first map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(always)+len(first))
	for k, v := range always {
		out[k] = v
	}
	for k, v := range first {
		if _, dup := out[k]; dup {
			return nil, false
		}
		out[k] = v
	}
	return out, true
}

// stripPrefixes removes the vendor prefix from extension capability keys and
// drops unprefixed keys that are not in the W3C standard list.
func stripPrefixes(caps map[string]any) map[string]any {
	out := make(map[string]any, len(caps))
	for k, v := range caps {
		if strings.HasPrefix(k, VendorPrefix) {
			out[strings.TrimPrefix(k, VendorPrefix)] = v
			continue
		}
		if !standardCaps[k] {
			log.Warn().Str("capability", k).
				Msgf("'%s' is not a standard capability and is missing the '%s' prefix, ignoring", k, VendorPrefix)
			continue
		}
		out[k] = v
	}
	return out
}

// applyConstraints validates every constrained name against the merged set,
// accumulating errors per name and applying permissive coercions.
func applyConstraints(caps map[string]any, constraints ConstraintSet) (map[string]any, []string) {
	out := make(map[string]any, len(caps))
	for k, v := range caps {
		out[k] = v
	}

	names := make([]string, 0, len(constraints))
	for name := range constraints {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []string
	for _, name := range names {
		value, provided := out[name]
		coerced, verrs := validateConstraint(constraints[name], name, value, provided)
		if len(verrs) > 0 {
			errs = append(errs, verrs...)
			continue
		}
		if provided {
			out[name] = coerced
		}
	}
	return out, errs
}

// warnOddVersions logs when version-shaped capabilities do not parse as
// semantic versions. Purely advisory; drivers accept free-form versions.
func warnOddVersions(caps map[string]any) {
	for _, name := range []string{"browserVersion", "platformVersion"} {
		v, ok := caps[name].(string)
		if !ok || v == "" {
			continue
		}
		if _, err := semver.NewVersion(v); err != nil {
			log.Warn().Str("capability", name).Str("value", v).
				Msg("value does not parse as a semantic version")
		}
	}
}
