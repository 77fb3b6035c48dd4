package view

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qtesting "github.com/cadencehq/cadence/internal/testing"
	"github.com/cadencehq/cadence/ingest"
	"github.com/cadencehq/cadence/registry"
	"github.com/cadencehq/cadence/store"
)

type fixture struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	composer *Composer
	project  *store.Item
	schedule *store.Item
	spec     *store.Item
	dd       *store.Item
	cd       *store.Item
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
		pipeline: ingest.New(s, nil, time.Minute, nil),
		composer: New(s),
		project:  mk("project", "Riverside Clinic", nil),
		schedule: mk("schedule", "Door Schedule", nil),
		spec:     mk("specification", "Spec 08", nil),
		dd:       mk("milestone", "DD", map[string]any{"ordinal": 300}),
		cd:       mk("milestone", "CD", map[string]any{"ordinal": 400}),
	}
}

func (f *fixture) importRows(t *testing.T, source, anchor *store.Item, rows ...ingest.Row) *ingest.Result {
	t.Helper()
	result, err := f.pipeline.ImportBatch(context.Background(), ingest.Options{
		SourceID: source.ID,
		AnchorID: anchor.ID,
		ItemType: "door",
		ScopeID:  f.project.ID,
		Rows:     rows,
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) door(t *testing.T) *store.Item {
	t.Helper()
	door, err := f.store.FindByIdentifier(context.Background(), "door", "101")
	require.NoError(t, err)
	require.NotNil(t, door)
	return door
}

func statusFor(t *testing.T, statuses []PropertyStatus, prop string) PropertyStatus {
	t.Helper()
	for _, ps := range statuses {
		if ps.Property == prop {
			return ps
		}
	}
	t.Fatalf("property %s not in resolved view", prop)
	return PropertyStatus{}
}

func TestResolvedView(t *testing.T) {
	ctx := context.Background()

	t.Run("single source", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"hardware_set": "HW-3"}})

		statuses, err := f.composer.ResolvedView(ctx, f.door(t).ID, f.dd.ID)
		require.NoError(t, err)

		ps := statusFor(t, statuses, "hardware_set")
		assert.Equal(t, StatusSingleSource, ps.Status)
		assert.Equal(t, "HW-3", ps.Value)
	})

	t.Run("agreed across sources including format variants", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})
		f.importRows(t, f.spec, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"width": `36"`}})

		statuses, err := f.composer.ResolvedView(ctx, f.door(t).ID, f.dd.ID)
		require.NoError(t, err)

		ps := statusFor(t, statuses, "width")
		assert.Equal(t, StatusAgreed, ps.Status)
		assert.Len(t, ps.Values, 2)
	})

	t.Run("conflicted without decision", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"finish": "paint"}})
		f.importRows(t, f.spec, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"finish": "stain"}})

		statuses, err := f.composer.ResolvedView(ctx, f.door(t).ID, f.dd.ID)
		require.NoError(t, err)

		ps := statusFor(t, statuses, "finish")
		assert.Equal(t, StatusConflicted, ps.Status)
		assert.Nil(t, ps.Value)
		assert.Equal(t, "paint", ps.Values[f.schedule.ID])
		assert.Equal(t, "stain", ps.Values[f.spec.ID])
	})

	t.Run("decision takes precedence over disagreement", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"finish": "paint"}})
		detected := f.importRows(t, f.spec, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"finish": "stain"}})
		require.Len(t, detected.ConflictItems, 1)
		conflict := detected.ConflictItems[0]

		snap, err := f.store.GetSnapshot(ctx, conflict.ID, f.dd.ID, conflict.ID)
		require.NoError(t, err)
		resolution, err := f.pipeline.ResolveConflict(ctx, ingest.ResolveOptions{
			ConflictID:      conflict.ID,
			ChosenValue:     "stain",
			ChosenSourceID:  f.spec.ID,
			Rationale:       "spec governs finishes",
			AnchorID:        f.dd.ID,
			ExpectedVersion: snap.Version,
		})
		require.NoError(t, err)

		statuses, err := f.composer.ResolvedView(ctx, f.door(t).ID, f.dd.ID)
		require.NoError(t, err)

		ps := statusFor(t, statuses, "finish")
		assert.Equal(t, StatusResolved, ps.Status)
		assert.Equal(t, "stain", ps.Value)
		assert.Equal(t, resolution.Decision.ID, ps.DecisionID)
	})

	t.Run("workflow items contribute nothing", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"finish": "paint"}})
		f.importRows(t, f.spec, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"finish": "stain"}})

		statuses, err := f.composer.ResolvedView(ctx, f.door(t).ID, f.dd.ID)
		require.NoError(t, err)

		// Only finish appears; the conflict item's own snapshots are
		// about the conflict, and no workflow source leaks in.
		for _, ps := range statuses {
			assert.NotContains(t, ps.Values, "status")
		}
	})
}

func TestEffectiveValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.importRows(t, f.schedule, f.dd,
		ingest.Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})

	eff, err := f.composer.EffectiveValue(ctx, f.door(t).ID, f.schedule.ID, f.cd.ID)
	require.NoError(t, err)
	require.NotNil(t, eff)
	assert.Equal(t, f.dd.ID, eff.Anchor.ID)

	missing, err := f.composer.EffectiveValue(ctx, f.door(t).ID, f.spec.ID, f.cd.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCompare(t *testing.T) {
	ctx := context.Background()

	t.Run("modified and unchanged", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`, "finish": "paint"}},
			ingest.Row{Identifier: "102", Properties: map[string]any{"width": `2'-8"`}},
		)
		f.importRows(t, f.schedule, f.cd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"width": `3'-6"`, "finish": "paint"}},
			ingest.Row{Identifier: "102", Properties: map[string]any{"width": `2'-8"`}},
		)

		door101 := f.door(t)
		door102, err := f.store.FindByIdentifier(ctx, "door", "102")
		require.NoError(t, err)

		comparisons, err := f.composer.Compare(ctx,
			[]string{door101.ID, door102.ID}, f.dd.ID, f.cd.ID, "")
		require.NoError(t, err)
		require.Len(t, comparisons, 2)

		assert.Equal(t, CategoryModified, comparisons[0].Category)
		require.Len(t, comparisons[0].PropertyChanges, 1)
		assert.Equal(t, "width", comparisons[0].PropertyChanges[0].Property)

		assert.Equal(t, CategoryUnchanged, comparisons[1].Category)
	})

	t.Run("added between anchors", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.cd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})

		comparisons, err := f.composer.Compare(ctx,
			[]string{f.door(t).ID}, f.dd.ID, f.cd.ID, "")
		require.NoError(t, err)
		assert.Equal(t, CategoryAdded, comparisons[0].Category)
	})

	t.Run("source filter narrows to one authority", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"finish": "paint"}})
		f.importRows(t, f.spec, f.cd,
			ingest.Row{Identifier: "101", Properties: map[string]any{"finish": "stain"}})

		// From the schedule's point of view nothing moved between DD
		// and CD; its DD value carries forward.
		comparisons, err := f.composer.Compare(ctx,
			[]string{f.door(t).ID}, f.dd.ID, f.cd.ID, f.schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, CategoryUnchanged, comparisons[0].Category)
	})

	t.Run("rejects non-anchor", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.composer.Compare(ctx, nil, f.project.ID, f.cd.ID, "")
		assert.Error(t, err)
	})
}
