package artifact

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is one JSON object from an artifact. Lookups never panic: absent
// keys, nulls and mistyped values fall back to the zero value or the
// supplied default.
type Record map[string]any

// Has reports whether key is present, even with a null value.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Get returns the value for key when it is present and not null.
func (r Record) Get(key string) (any, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the display form of key, or "" when absent or null.
func (r Record) String(key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	return Display(v)
}

// StringOr returns the display form of key, or def when absent or null.
func (r Record) StringOr(key, def string) string {
	v, ok := r.Get(key)
	if !ok {
		return def
	}
	return Display(v)
}

// FirstString returns the first non-empty value among keys.
func (r Record) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := r.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Number returns key as a float64 using Number semantics.
func (r Record) Number(key string) float64 {
	return Number(r[key])
}

// Truthy reports whether key holds a truthy value.
func (r Record) Truthy(key string) bool {
	return Truthy(r[key])
}

// Len returns the length of a list or object value.
func (r Record) Len(key string) (int, bool) {
	switch v := r[key].(type) {
	case []any:
		return len(v), true
	case map[string]any:
		return len(v), true
	default:
		return 0, false
	}
}

// Map returns key as a nested Record.
func (r Record) Map(key string) (Record, bool) {
	m, ok := r[key].(map[string]any)
	return Record(m), ok
}

// List returns key as a list.
func (r Record) List(key string) ([]any, bool) {
	l, ok := r[key].([]any)
	return l, ok
}

// Number converts a loosely typed JSON value to a float64. Numbers and
// numeric strings convert, everything else (null, text, bools, containers,
// NaN, infinities) is zero.
func Number(v any) float64 {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// IsNumeric reports whether v is a JSON number.
func IsNumeric(v any) bool {
	switch v.(type) {
	case json.Number, float64, float32, int, int64, uint64:
		return true
	default:
		return false
	}
}

// Sum adds values with Number semantics. The result does not depend on
// argument order.
func Sum(values ...any) float64 {
	var total float64
	for _, v := range values {
		total += Number(v)
	}
	return total
}

// Truthy applies the usual JSON truthiness: false, null, zero, "" and empty
// containers are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// Display renders a scalar the way it appears in the source file.
func Display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// KindOf names the JSON type of v for diagnostics.
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64, int:
		return "number"
	default:
		return "value"
	}
}
