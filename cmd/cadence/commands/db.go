package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadencehq/cadence/db"
	"github.com/cadencehq/cadence/errors"
)

// DbCmd groups database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the Cadence database",
	Long: `Manage Cadence database operations.

Examples:
  cadence db migrate          # Apply pending schema migrations
  cadence db stats            # Show item, connection and snapshot counts
  cadence db seed             # Load the demo project`,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides config)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbSeedCmd)
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	path := cfg.Database.Path
	if dbPathFlag != "" {
		path = dbPathFlag
	}
	database, err := db.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening database at %s", path)
	}
	defer database.Close()

	pending, err := db.PendingMigrations(database)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("Database is up to date")
		return nil
	}

	if err := db.Migrate(database); err != nil {
		return err
	}
	for _, m := range pending {
		fmt.Printf("Applied %s_%s\n", m.Version, m.Name)
	}
	return nil
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display counts of items by type, connections, snapshots and recorded snapshot events.",
	RunE:  runDbStats,
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	database, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	var items, connections, disconnected, snapshots, events int
	row := database.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM items),
			(SELECT COUNT(*) FROM connections),
			(SELECT COUNT(*) FROM connections WHERE disconnected_at IS NOT NULL),
			(SELECT COUNT(*) FROM snapshots),
			(SELECT COUNT(*) FROM snapshot_events)
	`)
	if err := row.Scan(&items, &connections, &disconnected, &snapshots, &events); err != nil {
		return errors.Wrap(err, "querying statistics")
	}

	fmt.Println("Cadence Database Statistics")
	fmt.Println("---------------------------")
	fmt.Printf("Items:           %d\n", items)
	fmt.Printf("Connections:     %d (%d disconnected)\n", connections, disconnected)
	fmt.Printf("Snapshots:       %d\n", snapshots)
	fmt.Printf("Snapshot events: %d\n", events)
	fmt.Println()

	rows, err := database.Query(`
		SELECT item_type, COUNT(*) FROM items GROUP BY item_type ORDER BY item_type
	`)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "querying item types")
	}
	if err == nil {
		defer rows.Close()
		fmt.Println("Items by type:")
		for rows.Next() {
			var itemType string
			var count int
			if err := rows.Scan(&itemType, &count); err != nil {
				return err
			}
			fmt.Printf("  %-14s %d\n", itemType, count)
		}
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}
