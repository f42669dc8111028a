package docstore

import (
	"strings"
	"time"
)

// MatchFields reports whether a document's fields satisfy every filter.
func MatchFields(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matchOne(fields[f.Field], f) {
			return false
		}
	}
	return true
}

func matchOne(val any, f Filter) bool {
	switch f.Op {
	case OpEqual:
		return CompareValues(val, f.Value) == 0
	case OpGreaterOrEqual:
		return CompareValues(val, f.Value) >= 0
	case OpIn:
		switch vals := f.Value.(type) {
		case []string:
			for _, v := range vals {
				if CompareValues(val, v) == 0 {
					return true
				}
			}
		case []any:
			for _, v := range vals {
				if CompareValues(val, v) == 0 {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// CompareValues orders the scalar kinds documents carry: numbers, strings,
// times, bools. JSON round-trips turn int64 into float64 and time.Time into
// RFC3339 strings, so numeric kinds compare cross-type and strings that
// parse as RFC3339 compare as instants. Mismatched kinds order by kind name.
func CompareValues(a, b any) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	ab, aok2 := a.(bool)
	bb, bok2 := b.(bool)
	if aok2 && bok2 {
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}
	return strings.Compare(kindOf(a), kindOf(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case bool:
		return "bool"
	case string:
		return "string"
	case int, int64, float32, float64:
		return "number"
	case time.Time:
		return "time"
	default:
		return "other"
	}
}

// CopyFields deep-copies a field map so stored state never aliases caller
// memory.
func CopyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyFields(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
