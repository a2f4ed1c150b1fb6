package openapi

import (
	"encoding/json"
	"fmt"
)

// sanitizeSchema converts a tool-supplied JSON-Schema-subset document into a
// safe form for the generated description. $ref/oneOf/allOf/anyOf nodes are
// passed through as opaque leaves rather than expanded or resolved,
// "required" is always coerced to array form, and "default" values are
// coerced to match their declared "type".
func sanitizeSchema(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{"type": "object"}
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return sanitizeValue(v)
}

func sanitizeValue(v interface{}) interface{} {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return v
	}

	for _, opaque := range []string{"$ref", "oneOf", "allOf", "anyOf"} {
		if _, has := obj[opaque]; has {
			return obj
		}
	}

	out := make(map[string]interface{}, len(obj))
	for k, val := range obj {
		switch k {
		case "properties":
			props, ok := val.(map[string]interface{})
			if !ok {
				out[k] = val
				continue
			}
			sanitized := make(map[string]interface{}, len(props))
			for name, p := range props {
				sanitized[name] = sanitizeValue(p)
			}
			out[k] = sanitized

		case "items":
			out[k] = sanitizeValue(val)

		case "required":
			out[k] = asStringArray(val)

		case "default":
			out[k] = coerceDefault(val, obj["type"])

		default:
			out[k] = val
		}
	}
	return out
}

func asStringArray(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case string:
		return []interface{}{t}
	default:
		return []interface{}{}
	}
}

func coerceDefault(v interface{}, declaredType interface{}) interface{} {
	typ, _ := declaredType.(string)
	switch typ {
	case "string":
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)

	case "number", "integer":
		switch n := v.(type) {
		case float64:
			return n
		case string:
			var f float64
			if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
				return f
			}
		}
		return 0

	case "boolean":
		if b, ok := v.(bool); ok {
			return b
		}
		return false

	case "array":
		if arr, ok := v.([]interface{}); ok {
			return arr
		}
		return []interface{}{v}

	case "object":
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
		return map[string]interface{}{}

	default:
		return v
	}
}
