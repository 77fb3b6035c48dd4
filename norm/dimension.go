package norm

import (
	"regexp"
	"strconv"
	"strings"
)

// Dimension strings arrive in several drafting conventions. All of these
// denote the same width:
//
//	3'-0"    3' 0"    3ft    36"    36in    36
//
// ParseDimension reduces them to inches so the comparison engine never
// reports a conflict between formatting variants.

var (
	feetInchesRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:'|ft\.?|feet)\s*[- ]?\s*(?:(\d+(?:\.\d+)?(?:\s+\d+/\d+)?)\s*(?:"|in\.?|inches)?)?$`)
	inchesRe     = regexp.MustCompile(`^(\d+(?:\.\d+)?(?:\s+\d+/\d+)?)\s*(?:"|in\.?|inches)$`)
	bareNumberRe = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	fractionRe   = regexp.MustCompile(`^(\d+(?:\.\d+)?)(?:\s+(\d+)/(\d+))?$`)
)

// ParseDimension parses a dimension string into inches. A bare number is
// taken as already being in inches.
func ParseDimension(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}

	if m := feetInchesRe.FindStringSubmatch(s); m != nil {
		feet, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		inches := 0.0
		if m[2] != "" {
			var ok bool
			inches, ok = parseMixedNumber(m[2])
			if !ok {
				return 0, false
			}
		}
		return feet*12 + inches, true
	}

	if m := inchesRe.FindStringSubmatch(s); m != nil {
		return parseMixedNumber(m[1])
	}

	if bareNumberRe.MatchString(s) {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}

	return 0, false
}

// parseMixedNumber handles "6", "6.5" and "6 1/2".
func parseMixedNumber(s string) (float64, bool) {
	m := fractionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	whole, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "" {
		return whole, true
	}
	num, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, false
	}
	den, err := strconv.ParseFloat(m[3], 64)
	if err != nil || den == 0 {
		return 0, false
	}
	return whole + num/den, true
}

// normalizeDimension is the "dimension" normalizer: values that parse as
// dimensions compare by their inch measure, everything else falls
// through unchanged.
func normalizeDimension(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if inches, ok := ParseDimension(s); ok {
		return inches
	}
	return v
}
