package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Entry is one key/value pair of an ordered batch.
type Entry struct {
	Key   string
	Value any
}

// EntriesFromMap converts a map into entries sorted by key. Use ParseEntries
// when the caller's key order matters.
func EntriesFromMap(m map[string]any) []Entry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Value: m[k]})
	}
	return out
}

// ParseEntries decodes a JSON object keeping its keys in document order.
// Values take the shape encoding/json gives them, except that integers too
// large for a float64 to hold exactly are kept as json.Number.
func ParseEntries(raw []byte) ([]Entry, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("values: invalid JSON")
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return nil, fmt.Errorf("values: expected a JSON object")
	}
	var out []Entry
	res.ForEach(func(k, v gjson.Result) bool {
		out = append(out, Entry{Key: k.String(), Value: jsonValue(v)})
		return true
	})
	return out, nil
}

// EntriesToMap flattens entries into a map; later duplicates win.
func EntriesToMap(entries []Entry) map[string]any {
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out
}

func jsonValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.String:
		return r.Str
	case gjson.Number:
		if strings.ContainsAny(r.Raw, ".eE") {
			return r.Num
		}
		return normalizeNumber(json.Number(r.Raw))
	}
	if r.IsArray() {
		out := []any{}
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, jsonValue(v))
			return true
		})
		return out
	}
	out := map[string]any{}
	r.ForEach(func(k, v gjson.Result) bool {
		out[k.Str] = jsonValue(v)
		return true
	})
	return out
}
