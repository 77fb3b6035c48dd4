package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := NewMatcher(s)

	door101 := mustItem(t, s, "door", "Door 101", nil)
	mustItem(t, s, "door", "Door 102", nil)
	mustItem(t, s, "room", "Door 101", nil) // same identifier, other type

	t.Run("exact", func(t *testing.T) {
		match, err := m.Match(ctx, "door", "Door 101")
		require.NoError(t, err)
		assert.Equal(t, MatchExact, match.Confidence)
		assert.Equal(t, door101.ID, match.Item.ID)
	})

	t.Run("normalized", func(t *testing.T) {
		match, err := m.Match(ctx, "door", "DOOR101")
		require.NoError(t, err)
		assert.Equal(t, MatchNormalized, match.Confidence)
		assert.Equal(t, door101.ID, match.Item.ID)
	})

	t.Run("fuzzy returns candidates not a match", func(t *testing.T) {
		match, err := m.Match(ctx, "door", "Door 10")
		require.NoError(t, err)
		assert.Equal(t, MatchFuzzy, match.Confidence)
		assert.Nil(t, match.Item)
		assert.Len(t, match.Candidates, 2)
	})

	t.Run("none", func(t *testing.T) {
		match, err := m.Match(ctx, "door", "Window 9")
		require.NoError(t, err)
		assert.Equal(t, MatchNone, match.Confidence)
	})

	t.Run("type scoped", func(t *testing.T) {
		match, err := m.Match(ctx, "specification", "Door 101")
		require.NoError(t, err)
		assert.Equal(t, MatchNone, match.Confidence)
	})

	t.Run("blank identifier", func(t *testing.T) {
		match, err := m.Match(ctx, "door", "   ")
		require.NoError(t, err)
		assert.Equal(t, MatchNone, match.Confidence)
	})
}
