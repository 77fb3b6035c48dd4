package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cadencehq/cadence/cmd/cadence/commands"
	"github.com/cadencehq/cadence/logger"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence - design document reconciliation engine",
	Long: `Cadence - graph-and-snapshot reconciliation for design documents.

Cadence tracks what each document says about each item at each design
milestone, detects changes and conflicts between revisions and sources,
and keeps the full assertion history queryable.

Available commands:
  serve   - Start the HTTP API server
  db      - Manage the Cadence database (migrate, stats, seed)
  version - Show version information

Examples:
  cadence serve                 # Start the API server
  cadence db migrate            # Apply pending schema migrations
  cadence db stats              # Show item and snapshot counts
  cadence db seed               # Load the demo project`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to cadence.toml (default: walk up from the working directory)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
