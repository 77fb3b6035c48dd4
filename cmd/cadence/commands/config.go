package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/cadencehq/cadence/config"
	"github.com/cadencehq/cadence/db"
	"github.com/cadencehq/cadence/errors"
)

// loadConfig honors the --config flag, falling back to the walk-up
// discovery of cadence.toml.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// openDatabase opens the configured database with migrations applied.
// A non-empty override wins over the configured path.
func openDatabase(cfg *config.Config, override string) (*sql.DB, error) {
	path := cfg.Database.Path
	if override != "" {
		path = override
	}
	database, err := db.OpenWithMigrations(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening database at %s", path)
	}
	return database, nil
}
