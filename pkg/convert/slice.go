package convert

// ToStringSlice converts a slice of strings to []string.
// Returns nil if v is not a slice or any element is not a string.
//
// Example:
//
//	s := ToStringSlice([]interface{}{"a", "b", "c"}) // Returns ["a", "b", "c"]
//	s := ToStringSlice([]interface{}{"a", 1})        // Returns nil
func ToStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			result[i] = s
		}
		return result
	}
	return nil
}

// ToStringSliceMap converts a map of name -> list of strings, the shape used
// for caption-keyed relationship arguments. A bare string value is accepted
// as a one-element list. Returns (nil, false) if any value has another shape.
func ToStringSliceMap(v interface{}) (map[string][]string, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		if typed, ok := v.(map[string][]string); ok {
			return typed, true
		}
		return nil, false
	}
	out := make(map[string][]string, len(m))
	for k, raw := range m {
		if s, ok := raw.(string); ok {
			out[k] = []string{s}
			continue
		}
		list := ToStringSlice(raw)
		if list == nil {
			if items, isList := raw.([]interface{}); !isList || len(items) != 0 {
				return nil, false
			}
			list = []string{}
		}
		out[k] = list
	}
	return out, true
}
