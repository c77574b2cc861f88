package model

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
)

// maxExactInt is the largest integer a float64 holds without rounding.
const maxExactInt = 1 << 53

// cloneValue deep-copies v into the shape encoding/json produces: numbers
// become float64, containers become map[string]any and []any. Integers a
// float64 cannot hold exactly become json.Number. Other types are returned
// as-is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return v
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case json.Number:
		return normalizeNumber(t)
	case float32:
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(t), 'g', -1, 32), 64)
		return f
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n > maxExactInt || n < -maxExactInt {
			return json.Number(strconv.FormatInt(n, 10))
		}
		return float64(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > maxExactInt {
			return json.Number(strconv.FormatUint(n, 10))
		}
		return float64(n)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = cloneValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = cloneValue(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}

// normalizeNumber keeps n only when it is an integer outside the exact
// float64 range.
func normalizeNumber(n json.Number) any {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		if i > maxExactInt || i < -maxExactInt {
			return n
		}
		return float64(i)
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsInf(f, 0) {
		return n
	}
	if isIntLiteral(string(n)) && math.Abs(f) > maxExactInt {
		return n
	}
	return f
}

func isIntLiteral(s string) bool {
	if s != "" && s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// sameValue compares two values already passed through cloneValue.
func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
