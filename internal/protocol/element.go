package protocol

// DuplicateElementKeys walks a decoded JSON value and, wherever an object
// carries one of the two element-identifier keys, adds the other with the
// same id. Arrays and nested objects are handled recursively. The input is
// never mutated; maps containing element keys are copied.
func DuplicateElementKeys(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v)+1)
		for k, inner := range v {
			out[k] = DuplicateElementKeys(inner)
		}
		if id, ok := out[JSONWPElementKey]; ok {
			if _, has := out[W3CElementKey]; !has {
				out[W3CElementKey] = id
			}
		}
		if id, ok := out[W3CElementKey]; ok {
			if _, has := out[JSONWPElementKey]; !has {
				out[JSONWPElementKey] = id
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = DuplicateElementKeys(inner)
		}
		return out
	default:
		return value
	}
}
