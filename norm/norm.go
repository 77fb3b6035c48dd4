// Package norm is the comparison engine: normalized value equality and
// property diffing. Equality is defined once here and reused identically
// by change detection, conflict detection, and the resolved view, so a
// formatting difference can never count as disagreement in one pass but
// not another.
package norm

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// NormalizeText lowercases (Unicode case folding) and collapses internal
// whitespace runs to single spaces.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(fold.String(s)), " ")
}

// NormalizeIdentifier normalizes a human-entered identifier for matching:
// case folded with all whitespace removed, so "Door 101", "door101" and
// "DOOR  101" collapse to the same key.
func NormalizeIdentifier(s string) string {
	return strings.Join(strings.Fields(fold.String(s)), "")
}

// ValuesEqual reports whether two property values are equal after
// normalization. Nil-safe. Strings are compared case and whitespace
// normalized; numbers are compared numerically, tolerating
// string-encoded numbers; maps and slices are compared after canonical
// JSON encoding so key order never matters.
func ValuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if na, aok := asNumber(a); aok {
		if nb, bok := asNumber(b); bok {
			return na == nb
		}
	}

	sa, aIsStr := a.(string)
	sb, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return NormalizeText(sa) == NormalizeText(sb)
	}
	if aIsStr != bIsStr {
		return false
	}

	if ba, aok := a.(bool); aok {
		bb, bok := b.(bool)
		return bok && ba == bb
	}

	return canonicalJSON(a) == canonicalJSON(b)
}

// EqualWith compares two values through a named normalizer before the
// generic equality. An empty or unknown normalizer name falls back to
// ValuesEqual.
func EqualWith(normalizer string, a, b any) bool {
	fn, ok := lookupNormalizer(normalizer)
	if !ok {
		return ValuesEqual(a, b)
	}
	return ValuesEqual(fn(a), fn(b))
}

// asNumber extracts a numeric value from numbers and numeric strings.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// canonicalJSON renders a value with recursively sorted object keys.
// encoding/json sorts map keys, which is exactly the canonical form we
// need for order-independent structured comparison.
func canonicalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
