package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/store/jsonfile"
)

// runSweep runs the reset sweep once. Failed communities are reported but
// the successful ones stay committed.
func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, err := a.sweep.RunNow(cmd.Context())
	for _, r := range reports {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tscanned=%d\tlapsed=%d\n", r.Day, r.Community, r.Scanned, r.Lapsed)
	}
	return err
}

// runBackup writes the plain-text dump of every balance.
func runBackup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cfg.Storage.BackupPath
	}
	if out == "" {
		return errors.New("no backup path: set --out or storage.backup_path")
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.store.Document(cmd.Context())
	if err != nil {
		return err
	}
	if err := ledger.WriteBackupFile(out, doc); err != nil {
		return err
	}
	a.logger.Info("backup written", "path", out, "communities", len(doc))
	return nil
}

// runMigrate reads a legacy JSON ledger (optionally with its separate
// lifetime file) and writes it as a full checkpoint to the configured
// backend, replacing whatever the backend held.
func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")
	lifetime, _ := cmd.Flags().GetString("lifetime")
	if cfg.Storage.Backend == "memory" {
		return errors.New("migrate needs a durable storage backend")
	}

	if _, err := os.Stat(from); err != nil {
		return err
	}

	src := jsonfile.New(from)
	src.LegacyLifetimePath = lifetime
	doc, err := src.Restore(cmd.Context())
	if err != nil {
		return fmt.Errorf("read %s: %w", from, err)
	}

	dst, _, err := openPersister(cfg.Storage)
	if err != nil {
		return err
	}
	defer dst.Close()

	start := time.Now()
	if err := dst.Persist(cmd.Context(), ledger.Checkpoint{Ledger: doc, Full: true}); err != nil {
		return fmt.Errorf("write %s store: %w", cfg.Storage.Backend, err)
	}

	members := 0
	for _, m := range doc {
		members += len(m)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrated %d communities, %d members to %s in %s\n",
		len(doc), members, cfg.Storage.Backend, time.Since(start).Round(time.Millisecond))
	return nil
}
