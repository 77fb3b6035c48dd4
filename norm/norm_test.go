package norm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"both nil", nil, nil, true},
		{"one nil", nil, "x", false},
		{"case insensitive", "Hollow Metal", "hollow metal", true},
		{"whitespace collapsed", "hollow  metal", " hollow metal ", true},
		{"different strings", "wood", "steel", false},
		{"numbers equal", 36.0, 36, true},
		{"string encoded number", "36", 36.0, true},
		{"string encoded number mismatch", "36.5", 36.0, false},
		{"number vs word", "thirty-six", 36.0, false},
		{"bools", true, true, true},
		{"bool mismatch", true, false, false},
		{"maps key order irrelevant", map[string]any{"a": 1.0, "b": 2.0}, map[string]any{"b": 2.0, "a": 1.0}, true},
		{"maps differing", map[string]any{"a": 1.0}, map[string]any{"a": 2.0}, false},
		{"slices ordered", []any{"a", "b"}, []any{"b", "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValuesEqual(tt.a, tt.b))
		})
	}
}

func TestParseDimension(t *testing.T) {
	tests := []struct {
		in     string
		inches float64
		ok     bool
	}{
		{`3'-0"`, 36, true},
		{`3' 0"`, 36, true},
		{`3'`, 36, true},
		{`3ft`, 36, true},
		{`36"`, 36, true},
		{`36in`, 36, true},
		{`36`, 36, true},
		{`3'-6"`, 42, true},
		{`2' 10"`, 34, true},
		{`1.5'`, 18, true},
		{`6 1/2"`, 6.5, true},
		{`7'-0 1/4"`, 84.25, true},
		{``, 0, false},
		{`wide`, 0, false},
		{`3x7`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDimension(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.inches, got, 1e-9)
			}
		})
	}
}

func TestEqualWith(t *testing.T) {
	t.Run("dimension variants agree", func(t *testing.T) {
		assert.True(t, EqualWith("dimension", `3'-0"`, `36"`))
		assert.True(t, EqualWith("dimension", `3'-0"`, 36.0))
		assert.False(t, EqualWith("dimension", `3'-0"`, `42"`))
	})

	t.Run("identifier normalizer ignores spacing", func(t *testing.T) {
		assert.True(t, EqualWith("identifier", "Door 101", "door101"))
	})

	t.Run("unknown normalizer falls back", func(t *testing.T) {
		assert.True(t, EqualWith("nonexistent", "A", "a"))
	})

	t.Run("custom normalizer", func(t *testing.T) {
		RegisterNormalizer("first-char", func(v any) any {
			if s, ok := v.(string); ok && s != "" {
				return s[:1]
			}
			return v
		})
		assert.True(t, EqualWith("first-char", "alpha", "aztec"))
	})
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "door101", NormalizeIdentifier("Door 101"))
	assert.Equal(t, "door101", NormalizeIdentifier("  DOOR\t101 "))
}
