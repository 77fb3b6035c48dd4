package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/ingest"
	"github.com/cadencehq/cadence/logger"
	"github.com/cadencehq/cadence/registry"
	"github.com/cadencehq/cadence/store"
)

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo project",
	Long: `Create a small demo project: a building with floors, rooms and
doors, two document sources asserting door properties across design
milestones, including one deliberate disagreement to exercise conflict
detection.`,
	RunE: runDbSeed,
}

func runDbSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := logger.Named("seed")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}
	database, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	types, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return errors.Wrap(err, "loading type registry")
	}
	st := store.New(database, types, log)

	mk := func(itemType, identifier string, props map[string]any) (*store.Item, error) {
		item, err := st.CreateItem(ctx, itemType, identifier, props)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s %q", itemType, identifier)
		}
		return item, nil
	}

	project, err := mk("project", "Lakeside Medical Center", nil)
	if err != nil {
		return err
	}
	building, err := mk("building", "Building A", nil)
	if err != nil {
		return err
	}
	floor, err := mk("floor", "Level 2", nil)
	if err != nil {
		return err
	}
	room203, err := mk("room", "Room 203", map[string]any{"use": "Exam"})
	if err != nil {
		return err
	}
	room204, err := mk("room", "Room 204", map[string]any{"use": "Office"})
	if err != nil {
		return err
	}

	sd, err := mk("milestone", "SD", map[string]any{"ordinal": 100})
	if err != nil {
		return err
	}
	dd, err := mk("milestone", "DD", map[string]any{"ordinal": 200})
	if err != nil {
		return err
	}
	if _, err := mk("milestone", "CD", map[string]any{"ordinal": 300}); err != nil {
		return err
	}

	schedule, err := mk("schedule", "Door Schedule Rev B", nil)
	if err != nil {
		return err
	}
	spec, err := mk("specification", "Spec 08 11 13", nil)
	if err != nil {
		return err
	}

	for _, pair := range [][2]*store.Item{
		{project, building}, {building, floor},
		{floor, room203}, {floor, room204},
	} {
		if _, err := st.Connect(ctx, pair[0].ID, pair[1].ID, nil); err != nil {
			return err
		}
	}

	pipeline := ingest.New(st, nil, time.Duration(cfg.Import.LockTimeoutSeconds)*time.Second, log)

	batches := []ingest.Options{
		{
			SourceID: schedule.ID, AnchorID: sd.ID, ItemType: "door", ScopeID: project.ID,
			Rows: []ingest.Row{
				{Identifier: "Door 101", Properties: map[string]any{
					"width": `3'-0"`, "fire_rating": "90 min", "material": "wood",
				}},
				{Identifier: "Door 102", Properties: map[string]any{
					"width": `3'-0"`, "fire_rating": "60 min", "material": "wood",
				}},
			},
		},
		// The spec disagrees with the schedule on Door 101's rating.
		{
			SourceID: spec.ID, AnchorID: sd.ID, ItemType: "door", ScopeID: project.ID,
			Rows: []ingest.Row{
				{Identifier: "Door 101", Properties: map[string]any{
					"fire_rating": "60 min", "material": "wood",
				}},
			},
		},
		// At DD the schedule widens Door 102, producing a change item.
		{
			SourceID: schedule.ID, AnchorID: dd.ID, ItemType: "door", ScopeID: project.ID,
			Rows: []ingest.Row{
				{Identifier: "Door 102", Properties: map[string]any{
					"width": `3'-6"`, "fire_rating": "60 min", "material": "wood",
				}},
			},
		},
	}

	for _, opts := range batches {
		result, err := pipeline.ImportBatch(ctx, opts)
		if err != nil {
			return err
		}
		log.Infow("seed batch imported",
			"batch_id", result.BatchID,
			"snapshots", result.SnapshotsWritten,
			"items_created", result.ItemsCreated,
			"changes", len(result.ChangeItems),
			"conflicts", len(result.ConflictItems),
		)
	}

	doors, err := st.ListItems(ctx, store.ItemFilter{Type: "door"})
	if err != nil {
		return err
	}
	for _, door := range doors {
		if _, err := st.EnsureConnection(ctx, room203.ID, door.ID, nil); err != nil {
			return err
		}
	}

	fmt.Println("Demo project seeded")
	fmt.Printf("  Project:   %s (%s)\n", project.Identifier, project.ID)
	fmt.Printf("  Sources:   %s, %s\n", schedule.Identifier, spec.Identifier)
	fmt.Printf("  Doors:     %d\n", len(doors))
	return nil
}
