// Package codec converts between the bridge wire format (JSON text) and
// in-memory structured values: string-keyed maps, lists, and scalars.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Decode parses a JSON object body into a parameter map.
//
// Decoding never fails: an empty, malformed, or non-object body degrades to
// an empty map so that missing-parameter errors surface uniformly from the
// command handlers instead of as transport failures.
func Decode(data []byte) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}

	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil || params == nil {
		return map[string]any{}
	}
	return params
}

// Encode renders a structured value as JSON text.
//
// Encoding is total: host-specific values (durations, timestamps, wide
// integers, non-finite floats, non-string map keys) are coerced to plain
// numbers or strings rather than failing the response write.
func Encode(v any) []byte {
	data, err := json.Marshal(sanitize(v))
	if err != nil {
		// Sanitize covers every shape json.Marshal can reject, so this is
		// unreachable in practice; degrade to an error payload regardless.
		data, _ = json.Marshal(map[string]any{"error": fmt.Sprintf("encode failed: %v", err)})
	}
	return data
}

// sanitize rewrites v into a shape json.Marshal always accepts.
func sanitize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32:
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Sprintf("%v", val)
		}
		return val
	case time.Duration:
		return val.Milliseconds()
	case time.Time:
		return val.Format(time.RFC3339)
	case error:
		return val.Error()
	case json.RawMessage:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = sanitize(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = sanitize(elem)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = sanitize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = sanitize(rv.Index(i).Interface())
		}
		return out
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitize(rv.Elem().Interface())
	}

	// Structs and anything else: let json.Marshal try; fall back to a string.
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}

// String extracts a string parameter, returning "" when absent or mistyped.
func String(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// Bool extracts a boolean parameter.
func Bool(params map[string]any, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}

// Int extracts an integer parameter. JSON numbers decode as float64.
func Int(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
