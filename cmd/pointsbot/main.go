/*
main.go - Application entry point

PURPOSE:
  The pointsbot binary. Runs the HTTP surface the chat adapter talks to,
  and offers the maintenance tasks an operator needs without a running
  server.

COMMANDS:
  serve    Load the ledger, start the sweep scheduler and the HTTP server
  sweep    Run one reset sweep over every community and exit
  backup   Write the plain-text balance backup and exit
  migrate  Copy a legacy JSON ledger into the configured backend

GLOBAL FLAGS:
  --config     Config file (.yaml, .yml, .json or .toml); empty uses defaults
  --log-level  Overrides log.level from the config

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler
  2. Stop accepting new connections, wait for active requests
  3. Close the store (every mutation is already checkpointed)

EXAMPLES:
  ./pointsbot serve --config config.json
  ./pointsbot backup --config bot.yaml --out /tmp/points.txt
  ./pointsbot migrate --config bot.toml --from data/points.json --lifetime data/lifetime.json

SEE ALSO:
  - app.go: dependency wiring
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "pointsbot",
		Short:         "Daily-claim points economy for chat communities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reset sweep scheduler",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in serve.go
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run one reset sweep over every community",
		Args:  cobra.NoArgs,
		RunE:  runSweep, // Defined in ops.go
	}

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Write the plain-text balance backup",
		Args:  cobra.NoArgs,
		RunE:  runBackup, // Defined in ops.go
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Copy a legacy JSON ledger into the configured backend",
		Args:  cobra.NoArgs,
		RunE:  runMigrate, // Defined in ops.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (.yaml, .yml, .json or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	serveCmd.Flags().String("addr", "", "listen address (default http.addr)")
	backupCmd.Flags().String("out", "", "backup file (default storage.backup_path)")
	migrateCmd.Flags().String("from", "", "legacy points JSON file")
	migrateCmd.Flags().String("lifetime", "", "legacy lifetime totals JSON file")
	_ = migrateCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(serveCmd, sweepCmd, backupCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
