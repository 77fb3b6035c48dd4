package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/errors"
	qtesting "github.com/cadencehq/cadence/internal/testing"
	"github.com/cadencehq/cadence/registry"
	"github.com/cadencehq/cadence/store"
)

type fixture struct {
	store    *store.Store
	pipeline *Pipeline
	project  *store.Item
	schedule *store.Item
	spec     *store.Item
	sd       *store.Item
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
		pipeline: New(s, nil, time.Minute, nil),
		project:  mk("project", "Riverside Clinic", nil),
		schedule: mk("schedule", "Door Schedule", nil),
		spec:     mk("specification", "Spec 08", nil),
		sd:       mk("milestone", "SD", map[string]any{"ordinal": 200}),
		dd:       mk("milestone", "DD", map[string]any{"ordinal": 300}),
		cd:       mk("milestone", "CD", map[string]any{"ordinal": 400}),
	}
}

func (f *fixture) importRows(t *testing.T, source, anchor *store.Item, rows ...Row) *Result {
	t.Helper()
	result, err := f.pipeline.ImportBatch(context.Background(), Options{
		SourceID: source.ID,
		AnchorID: anchor.ID,
		ItemType: "door",
		ScopeID:  f.project.ID,
		Rows:     rows,
	})
	require.NoError(t, err)
	return result
}

func TestImportBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("creates items snapshots and connections", func(t *testing.T) {
		f := newFixture(t)
		result := f.importRows(t, f.schedule, f.dd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}},
			Row{Identifier: "102", Properties: map[string]any{"width": `2'-8"`}},
		)

		assert.Equal(t, 2, result.SnapshotsWritten)
		assert.Equal(t, 2, result.ItemsCreated)
		assert.Empty(t, result.ChangeItems)
		assert.Empty(t, result.ConflictItems)

		door, err := f.store.FindByIdentifier(ctx, "door", "101")
		require.NoError(t, err)
		require.NotNil(t, door)

		// Connected to both the source and the scope.
		srcConn, err := f.store.AreConnected(ctx, f.schedule.ID, door.ID)
		require.NoError(t, err)
		projConn, err := f.store.AreConnected(ctx, f.project.ID, door.ID)
		require.NoError(t, err)
		assert.True(t, srcConn)
		assert.True(t, projConn)

		snap, err := f.store.GetSnapshot(ctx, door.ID, f.dd.ID, f.schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, `3'-0"`, snap.Properties["width"])
	})

	t.Run("records batch item with status snapshots", func(t *testing.T) {
		f := newFixture(t)
		result := f.importRows(t, f.schedule, f.dd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})

		batch, err := f.store.GetItem(ctx, result.BatchID)
		require.NoError(t, err)
		assert.Equal(t, "import_batch", batch.Type)

		snap, err := f.store.GetSnapshot(ctx, batch.ID, f.dd.ID, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, BatchCompleted, snap.Properties["status"])

		// processing -> completed is preserved in the event log.
		events, err := f.store.SnapshotEvents(ctx, snap.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, BatchProcessing, events[0].Properties["status"])
	})

	t.Run("source self-snapshot records import metadata", func(t *testing.T) {
		f := newFixture(t)
		result := f.importRows(t, f.schedule, f.dd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})

		snap, err := f.store.GetSnapshot(ctx, f.schedule.ID, f.dd.ID, f.schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, result.BatchID, snap.Properties["batch_id"])
		assert.Equal(t, 1.0, snap.Properties["row_count"])
	})

	t.Run("re-import is idempotent", func(t *testing.T) {
		f := newFixture(t)
		rows := []Row{
			{Identifier: "101", Properties: map[string]any{"width": `3'-0"`, "material": "wood"}},
			{Identifier: "102", Properties: map[string]any{"width": `2'-8"`}},
		}
		f.importRows(t, f.schedule, f.dd, rows...)
		second := f.importRows(t, f.schedule, f.dd, rows...)

		assert.Zero(t, second.SnapshotsWritten)
		assert.Zero(t, second.ItemsCreated)
		assert.Empty(t, second.ChangeItems)
		assert.Empty(t, second.ConflictItems)

		// Still exactly one snapshot row per triple.
		door, err := f.store.FindByIdentifier(ctx, "door", "101")
		require.NoError(t, err)
		snaps, err := f.store.ListSnapshots(ctx, store.SnapshotFilter{
			ItemID: door.ID, SourceID: f.schedule.ID,
		})
		require.NoError(t, err)
		assert.Len(t, snaps, 1)
	})

	t.Run("rejects non-source item", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pipeline.ImportBatch(ctx, Options{
			SourceID: f.project.ID,
			AnchorID: f.dd.ID,
			ItemType: "door",
		})
		assert.True(t, errors.IsInvalidRequest(err))
	})

	t.Run("rejects non-temporal anchor", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pipeline.ImportBatch(ctx, Options{
			SourceID: f.schedule.ID,
			AnchorID: f.project.ID,
			ItemType: "door",
		})
		assert.True(t, errors.IsInvalidRequest(err))
	})

	t.Run("lock is released after the batch", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})
		// A second import on the same scope proceeds immediately.
		f.importRows(t, f.spec, f.dd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})
	})

	t.Run("held lock rejects a concurrent batch", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.AcquireImportLock(ctx, f.project.ID, "other-import", time.Minute))

		_, err := f.pipeline.ImportBatch(ctx, Options{
			SourceID: f.schedule.ID,
			AnchorID: f.dd.ID,
			ItemType: "door",
			ScopeID:  f.project.ID,
		})
		assert.True(t, errors.IsLockBusy(err))
	})

	t.Run("column mapping is stored on the source for reuse", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pipeline.ImportBatch(ctx, Options{
			SourceID: f.schedule.ID,
			AnchorID: f.dd.ID,
			ItemType: "door",
			ScopeID:  f.project.ID,
			Mapping:  map[string]string{"Mark": "identifier", "Rating": "fire_rating"},
			Rows: []Row{
				{Identifier: "101", Properties: map[string]any{"fire_rating": "90 min"}},
			},
		})
		require.NoError(t, err)

		source, err := f.store.GetItem(ctx, f.schedule.ID)
		require.NoError(t, err)
		mapping := source.Properties["import_mapping"].(map[string]any)
		assert.Equal(t, "fire_rating", mapping["Rating"])

		self, err := f.store.GetSnapshot(ctx, f.schedule.ID, f.dd.ID, f.schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, []any{"Mark", "Rating"}, self.Properties["mapped_columns"])
	})
}

func TestChangeDetection(t *testing.T) {
	ctx := context.Background()

	t.Run("first observation is not a change", func(t *testing.T) {
		f := newFixture(t)
		result := f.importRows(t, f.schedule, f.dd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})
		assert.Empty(t, result.ChangeItems)
	})

	t.Run("transition between anchors creates one change per property", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`, "material": "wood"}})
		result := f.importRows(t, f.schedule, f.cd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-6"`, "material": "wood"}})

		require.Len(t, result.ChangeItems, 1)
		change := result.ChangeItems[0]
		assert.Equal(t, "width", change.Properties["property"])
		assert.Equal(t, f.dd.ID, change.Properties["from_anchor_id"])
		assert.Equal(t, f.cd.ID, change.Properties["to_anchor_id"])

		snap, err := f.store.GetSnapshot(ctx, change.ID, f.cd.ID, change.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusDetected, snap.Properties["status"])
		assert.Equal(t, `3'-0"`, snap.Properties["old_value"])
		assert.Equal(t, `3'-6"`, snap.Properties["new_value"])
	})

	t.Run("formatting variants are not changes", func(t *testing.T) {
		f := newFixture(t)
		f.importRows(t, f.schedule, f.dd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})
		result := f.importRows(t, f.schedule, f.cd,
			Row{Identifier: "101", Properties: map[string]any{"width": `36"`}})
		assert.Empty(t, result.ChangeItems)
	})

	t.Run("carry-forward diff skips unasserted anchors", func(t *testing.T) {
		f := newFixture(t)
		// Asserted at SD, nothing at DD, changed at CD: the change is
		// SD -> CD.
		f.importRows(t, f.schedule, f.sd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})
		result := f.importRows(t, f.schedule, f.cd,
			Row{Identifier: "101", Properties: map[string]any{"width": `3'-6"`}})

		require.Len(t, result.ChangeItems, 1)
		assert.Equal(t, f.sd.ID, result.ChangeItems[0].Properties["from_anchor_id"])
	})
}

func TestAcknowledgeChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.importRows(t, f.schedule, f.dd,
		Row{Identifier: "101", Properties: map[string]any{"width": `3'-0"`}})
	result := f.importRows(t, f.schedule, f.cd,
		Row{Identifier: "101", Properties: map[string]any{"width": `3'-6"`}})
	require.Len(t, result.ChangeItems, 1)
	change := result.ChangeItems[0]

	snap, err := f.store.GetSnapshot(ctx, change.ID, f.cd.ID, change.ID)
	require.NoError(t, err)

	t.Run("acknowledges with note", func(t *testing.T) {
		updated, err := f.pipeline.AcknowledgeChange(ctx, change.ID, "reviewed by architect", f.cd.ID, snap.Version)
		require.NoError(t, err)
		assert.Equal(t, StatusAcknowledged, updated.Properties["status"])
		assert.Equal(t, "reviewed by architect", updated.Properties["note"])
	})

	t.Run("stale version fails", func(t *testing.T) {
		_, err := f.pipeline.AcknowledgeChange(ctx, change.ID, "again", f.cd.ID, snap.Version)
		assert.True(t, errors.IsStaleVersion(err))
	})

	t.Run("non-change item rejected", func(t *testing.T) {
		_, err := f.pipeline.AcknowledgeChange(ctx, f.schedule.ID, "", f.cd.ID, 1)
		assert.True(t, errors.IsInvalidRequest(err))
	})
}

func TestDeferredRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Two doors whose identifiers share a prefix with the incoming row.
	_, err := f.store.CreateItem(ctx, "door", "Door 101", nil)
	require.NoError(t, err)
	_, err = f.store.CreateItem(ctx, "door", "Door 102", nil)
	require.NoError(t, err)

	result := f.importRows(t, f.schedule, f.dd,
		Row{Identifier: "Door 10", Properties: map[string]any{"width": `3'-0"`}})

	require.Len(t, result.Deferred, 1)
	assert.Len(t, result.Deferred[0].Candidates, 2)
	assert.Zero(t, result.SnapshotsWritten)
	assert.Zero(t, result.ItemsCreated)

	t.Run("confirm match applies the row", func(t *testing.T) {
		target := result.Deferred[0].Candidates[0]
		confirmed, err := f.pipeline.ConfirmMatch(ctx, f.schedule.ID, f.dd.ID, target.ID,
			result.Deferred[0].Row.Properties)
		require.NoError(t, err)
		assert.Equal(t, 1, confirmed.SnapshotsWritten)

		snap, err := f.store.GetSnapshot(ctx, target.ID, f.dd.ID, f.schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, `3'-0"`, snap.Properties["width"])
	})
}
