package norm

import "sync"

// NormalizerFunc maps a raw property value to its canonical form for
// comparison. Normalizers must be total: unrecognized input passes
// through unchanged rather than erroring.
type NormalizerFunc func(any) any

var (
	normalizersMu sync.RWMutex
	normalizers   = map[string]NormalizerFunc{
		"text":       normalizeTextValue,
		"identifier": normalizeIdentifierValue,
		"numeric":    normalizeNumericValue,
		"dimension":  normalizeDimension,
	}
)

// RegisterNormalizer installs or replaces a named normalizer. Domain
// deployments register their own alongside the built-ins.
func RegisterNormalizer(name string, fn NormalizerFunc) {
	normalizersMu.Lock()
	defer normalizersMu.Unlock()
	normalizers[name] = fn
}

// NormalizerNames returns the registered normalizer names.
func NormalizerNames() []string {
	normalizersMu.RLock()
	defer normalizersMu.RUnlock()
	names := make([]string, 0, len(normalizers))
	for name := range normalizers {
		names = append(names, name)
	}
	return names
}

func lookupNormalizer(name string) (NormalizerFunc, bool) {
	if name == "" {
		return nil, false
	}
	normalizersMu.RLock()
	defer normalizersMu.RUnlock()
	fn, ok := normalizers[name]
	return fn, ok
}

func normalizeTextValue(v any) any {
	if s, ok := v.(string); ok {
		return NormalizeText(s)
	}
	return v
}

func normalizeIdentifierValue(v any) any {
	if s, ok := v.(string); ok {
		return NormalizeIdentifier(s)
	}
	return v
}

func normalizeNumericValue(v any) any {
	if n, ok := asNumber(v); ok {
		return n
	}
	return v
}
