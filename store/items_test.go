package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/errors"
	qtesting "github.com/cadencehq/cadence/internal/testing"
	"github.com/cadencehq/cadence/registry"
)

func TestCreateItem(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and fetches", func(t *testing.T) {
		s := newTestStore(t)
		item := mustItem(t, s, "door", "101", map[string]any{"material": "wood"})

		got, err := s.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "door", got.Type)
		assert.Equal(t, "101", got.Identifier)
		assert.Equal(t, "wood", got.Properties["material"])
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.CreateItem(ctx, "spaceship", "x", nil)
		assert.True(t, errors.IsInvalidRequest(err))
	})

	t.Run("duplicate identifiers allowed by default", func(t *testing.T) {
		s := newTestStore(t)
		mustItem(t, s, "door", "101", nil)
		_, err := s.CreateItem(ctx, "door", "101", nil)
		assert.NoError(t, err)
	})

	t.Run("unique identifier flag enforced", func(t *testing.T) {
		reg, err := registry.New([]registry.TypeDescriptor{
			{Name: "badge", UniqueIdentifier: true},
		})
		require.NoError(t, err)
		s := New(qtesting.CreateTestDB(t), reg, nil)

		_, err = s.CreateItem(ctx, "badge", "B-1", nil)
		require.NoError(t, err)
		_, err = s.CreateItem(ctx, "badge", "b 1", nil)
		assert.True(t, errors.Is(err, errors.ErrConflict))
	})
}

func TestGetItemNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetItem(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestMergeItemProperties(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	item := mustItem(t, s, "room", "203", map[string]any{"finish": "carpet", "area": "150"})

	updated, err := s.MergeItemProperties(ctx, item.ID, map[string]any{
		"finish":   "tile",
		"occupant": "records",
		"area":     nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "tile", updated.Properties["finish"])
	assert.Equal(t, "records", updated.Properties["occupant"])
	assert.NotContains(t, updated.Properties, "area")

	// Persisted, not just in-memory.
	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "tile", got.Properties["finish"])
}

func TestListItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustItem(t, s, "door", "Door 101", nil)
	mustItem(t, s, "door", "Door 102", nil)
	mustItem(t, s, "room", "Room 101", nil)

	t.Run("filters by type", func(t *testing.T) {
		items, err := s.ListItems(ctx, ItemFilter{Type: "door"})
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("identifier search is normalized", func(t *testing.T) {
		items, err := s.ListItems(ctx, ItemFilter{Type: "door", IdentifierQuery: "door101"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Door 101", items[0].Identifier)
	})

	t.Run("limit applies", func(t *testing.T) {
		items, err := s.ListItems(ctx, ItemFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})
}

func TestFindByIdentifier(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	first := mustItem(t, s, "door", "Door 101", nil)
	mustItem(t, s, "door", "door101", nil)

	t.Run("oldest wins among duplicates", func(t *testing.T) {
		got, err := s.FindByIdentifier(ctx, "door", "DOOR 101")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("nil when absent", func(t *testing.T) {
		got, err := s.FindByIdentifier(ctx, "door", "999")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
