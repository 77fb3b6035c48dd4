package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/logger"
	"github.com/cadencehq/cadence/registry"
	"github.com/cadencehq/cadence/server"
)

// ServeCmd starts the Cadence HTTP API server.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the Cadence API server",
	Long:    `Start the HTTP API server exposing items, connections, snapshots, imports, conflict resolution, navigation and comparison endpoints.`,
	RunE:    runServe,
}

var (
	serveAddrFlag   string
	serveDBPathFlag string
)

func init() {
	ServeCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "Listen address (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPathFlag, "db-path", "", "Database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Named("serve")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}
	if serveAddrFlag != "" {
		cfg.Server.Addr = serveAddrFlag
	}

	database, err := openDatabase(cfg, serveDBPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	types, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return errors.Wrap(err, "loading type registry")
	}
	if cfg.Registry.Watch && cfg.Registry.Path != "" {
		if err := types.Watch(cfg.Registry.Path); err != nil {
			return errors.Wrap(err, "watching type registry")
		}
		defer types.Close()
	}

	srv := server.New(database, types, cfg)

	// Shut down cleanly on SIGINT/SIGTERM so in-flight imports commit
	// or roll back rather than dying mid-transaction.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case sig := <-sigCh:
		log.Infow("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		return err
	}
}
