// Package capabilities implements W3C capability negotiation: merging
// {alwaysMatch, firstMatch} requests, stripping vendor prefixes, validating
// the merged set against driver-declared constraints, and coercing
// string-encoded primitives with a logged warning instead of a rejection.
package capabilities

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/pkg/driver"
)

// Constraint is the validation record for one capability name, declared by
// drivers through the pkg/driver contract.
type Constraint = driver.Constraint

// ConstraintSet maps capability names to their constraint records.
type ConstraintSet = driver.ConstraintSet

// requiredConstraints are enforced for every session regardless of what the
// driver declares.
var requiredConstraints = ConstraintSet{
	"platformName": {Presence: true, IsString: true},
}

// mergeConstraintSets returns the union of two constraint sets. Entries in
// the second set win on name collisions.
func mergeConstraintSets(base, extra ConstraintSet) ConstraintSet {
	out := make(ConstraintSet, len(base)+len(extra))
	for name, c := range base {
		out[name] = c
	}
	for name, c := range extra {
		out[name] = c
	}
	return out
}

// isBlank reports whether a provided value counts as absent for presence
// checks: nil, empty or whitespace-only string, empty object, empty array.
func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// validateConstraint runs every validator of the constraint against the named
// value. It returns the possibly coerced value and the accumulated error
// messages. Type validators pass silently when the value is absent.
func validateConstraint(c Constraint, name string, value any, provided bool) (any, []string) {
	var errs []string

	if c.Presence && (!provided || isBlank(value)) {
		// An omitted value with no other constraint is handled by the caller;
		// presence demands it be provided and non-blank.
		errs = append(errs, fmt.Sprintf("'%s' can't be blank", name))
	}

	if !provided || value == nil {
		return value, errs
	}

	if c.Deprecated {
		log.Warn().Str("capability", name).Msg("capability is deprecated and will be removed in a future release")
	}

	value, errs = checkType(c, name, value, errs)
	errs = checkInclusion(c, name, value, errs)

	return value, errs
}

// checkType runs every declared type gate, not just the first; a constraint
// with multiple gates accumulates one error per failed gate.
func checkType(c Constraint, name string, value any, errs []string) (any, []string) {
	if c.IsString {
		if _, ok := value.(string); !ok {
			errs = append(errs, fmt.Sprintf("'%s' must be of type string", name))
		}
	}
	if c.IsNumber {
		switch v := value.(type) {
		case float64, int, int64:
		case string:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				log.Warn().Str("capability", name).Str("value", v).
					Msg("string value coerced to number; sending a number is preferred")
				value = n
			} else {
				errs = append(errs, fmt.Sprintf("'%s' must be of type number", name))
			}
		default:
			errs = append(errs, fmt.Sprintf("'%s' must be of type number", name))
		}
	}
	if c.IsBoolean {
		switch v := value.(type) {
		case bool:
		case string:
			if b, err := strconv.ParseBool(v); err == nil && (v == "true" || v == "false") {
				log.Warn().Str("capability", name).Str("value", v).
					Msg("string value coerced to boolean; sending a boolean is preferred")
				value = b
			} else {
				errs = append(errs, fmt.Sprintf("'%s' must be of type boolean", name))
			}
		default:
			errs = append(errs, fmt.Sprintf("'%s' must be of type boolean", name))
		}
	}
	if c.IsObject {
		if _, ok := value.(map[string]any); !ok {
			errs = append(errs, fmt.Sprintf("'%s' must be of type object", name))
		}
	}
	if c.IsArray {
		if _, ok := value.([]any); !ok {
			errs = append(errs, fmt.Sprintf("'%s' must be of type array", name))
		}
	}
	return value, errs
}

func checkInclusion(c Constraint, name string, value any, errs []string) []string {
	if len(c.Inclusion) > 0 {
		found := false
		for _, allowed := range c.Inclusion {
			if allowed == value {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("'%s' %v is not included in the list", name, value))
		}
	}
	if len(c.InclusionCaseInsensitive) > 0 {
		s, ok := value.(string)
		if !ok {
			return append(errs, fmt.Sprintf("'%s' %v is not included in the list", name, value))
		}
		found := false
		for _, allowed := range c.InclusionCaseInsensitive {
			if strings.EqualFold(allowed, s) {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("'%s' %v is not included in the list", name, value))
		}
	}
	return errs
}
