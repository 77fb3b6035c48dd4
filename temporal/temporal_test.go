package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/errors"
	qtesting "github.com/cadencehq/cadence/internal/testing"
	"github.com/cadencehq/cadence/registry"
	"github.com/cadencehq/cadence/store"
)

type fixture struct {
	store    *store.Store
	resolver *Resolver
	door     *store.Item
	schedule *store.Item
	spec     *store.Item
	sd       *store.Item // ordinal 200
	dd       *store.Item // ordinal 300
	cd       *store.Item // ordinal 400
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(qtesting.CreateTestDB(t), registry.Default(), nil)
	ctx := context.Background()

	mk := func(itemType, identifier string, props map[string]any) *store.Item {
		item, err := s.CreateItem(ctx, itemType, identifier, props)
		require.NoError(t, err)
		return item
	}

	return &fixture{
		store:    s,
		resolver: New(s),
		door:     mk("door", "101", nil),
		schedule: mk("schedule", "Door Schedule", nil),
		spec:     mk("specification", "Spec 08", nil),
		sd:       mk("milestone", "SD", map[string]any{"ordinal": 200}),
		dd:       mk("milestone", "DD", map[string]any{"ordinal": 300}),
		cd:       mk("milestone", "CD", map[string]any{"ordinal": 400}),
	}
}

func (f *fixture) assert(t *testing.T, anchor *store.Item, source *store.Item, props map[string]any) {
	t.Helper()
	_, _, err := f.store.UpsertSnapshot(context.Background(), f.door.ID, anchor.ID, source.ID, props)
	require.NoError(t, err)
}

func TestOrdinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ordinal, err := f.resolver.Ordinal(ctx, f.dd.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, ordinal)

	t.Run("non-anchor fails", func(t *testing.T) {
		_, err := f.resolver.Ordinal(ctx, f.door.ID)
		assert.True(t, errors.IsInvalidRequest(err))
	})

	t.Run("missing ordinal fails", func(t *testing.T) {
		bare, err := f.store.CreateItem(ctx, "milestone", "bare", nil)
		require.NoError(t, err)
		_, err = f.resolver.Ordinal(ctx, bare.ID)
		assert.True(t, errors.IsInvalidRequest(err))
	})
}

func TestEffectiveAssertion(t *testing.T) {
	ctx := context.Background()

	t.Run("exact anchor match", func(t *testing.T) {
		f := newFixture(t)
		f.assert(t, f.dd, f.schedule, map[string]any{"width": `3'-0"`})

		eff, err := f.resolver.EffectiveAssertion(ctx, f.door.ID, f.schedule.ID, f.dd.ID)
		require.NoError(t, err)
		require.NotNil(t, eff)
		assert.Equal(t, f.dd.ID, eff.Anchor.ID)
	})

	t.Run("carry-forward to later anchor", func(t *testing.T) {
		f := newFixture(t)
		f.assert(t, f.dd, f.schedule, map[string]any{"width": `3'-0"`})

		eff, err := f.resolver.EffectiveAssertion(ctx, f.door.ID, f.schedule.ID, f.cd.ID)
		require.NoError(t, err)
		require.NotNil(t, eff)
		assert.Equal(t, f.dd.ID, eff.Anchor.ID)
		assert.Equal(t, `3'-0"`, eff.Snapshot.Properties["width"])
	})

	t.Run("no backward carry", func(t *testing.T) {
		f := newFixture(t)
		f.assert(t, f.dd, f.schedule, map[string]any{"width": `3'-0"`})

		eff, err := f.resolver.EffectiveAssertion(ctx, f.door.ID, f.schedule.ID, f.sd.ID)
		require.NoError(t, err)
		assert.Nil(t, eff)
	})

	t.Run("latest at-or-before wins", func(t *testing.T) {
		f := newFixture(t)
		f.assert(t, f.sd, f.schedule, map[string]any{"width": `2'-8"`})
		f.assert(t, f.dd, f.schedule, map[string]any{"width": `3'-0"`})

		eff, err := f.resolver.EffectiveAssertion(ctx, f.door.ID, f.schedule.ID, f.cd.ID)
		require.NoError(t, err)
		require.NotNil(t, eff)
		assert.Equal(t, `3'-0"`, eff.Snapshot.Properties["width"])
	})

	t.Run("insertion order is irrelevant", func(t *testing.T) {
		f := newFixture(t)
		// CD snapshot written first, DD snapshot written later in
		// wall-clock time. Ordinals alone decide.
		f.assert(t, f.cd, f.schedule, map[string]any{"width": `3'-6"`})
		f.assert(t, f.dd, f.schedule, map[string]any{"width": `3'-0"`})

		eff, err := f.resolver.EffectiveAssertion(ctx, f.door.ID, f.schedule.ID, f.cd.ID)
		require.NoError(t, err)
		require.NotNil(t, eff)
		assert.Equal(t, f.cd.ID, eff.Anchor.ID)
		assert.Equal(t, `3'-6"`, eff.Snapshot.Properties["width"])
	})
}

func TestPriorAssertion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assert(t, f.sd, f.schedule, map[string]any{"width": `2'-8"`})
	f.assert(t, f.dd, f.schedule, map[string]any{"width": `3'-0"`})

	t.Run("strictly before", func(t *testing.T) {
		prior, err := f.resolver.PriorAssertion(ctx, f.door.ID, f.schedule.ID, f.dd.ID)
		require.NoError(t, err)
		require.NotNil(t, prior)
		assert.Equal(t, f.sd.ID, prior.Anchor.ID)
	})

	t.Run("nothing before the first anchor", func(t *testing.T) {
		prior, err := f.resolver.PriorAssertion(ctx, f.door.ID, f.schedule.ID, f.sd.ID)
		require.NoError(t, err)
		assert.Nil(t, prior)
	})
}

func TestEffectiveBySource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assert(t, f.sd, f.schedule, map[string]any{"width": `2'-8"`})
	f.assert(t, f.dd, f.spec, map[string]any{"width": `3'-0"`})

	// A workflow item asserting about the door must not count as a source.
	conflict, err := f.store.CreateItem(ctx, "conflict", "", nil)
	require.NoError(t, err)
	_, _, err = f.store.UpsertSnapshot(ctx, f.door.ID, f.dd.ID, conflict.ID,
		map[string]any{"status": "DETECTED"})
	require.NoError(t, err)

	effective, err := f.resolver.EffectiveBySource(ctx, f.door.ID, f.cd.ID)
	require.NoError(t, err)

	require.Len(t, effective, 2)
	assert.Equal(t, `2'-8"`, effective[f.schedule.ID].Snapshot.Properties["width"])
	assert.Equal(t, `3'-0"`, effective[f.spec.ID].Snapshot.Properties["width"])
	assert.NotContains(t, effective, conflict.ID)
}
