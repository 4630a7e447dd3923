package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/filebox/pkg/config"
	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/storage"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "filebox-migrate",
	Short: "Upgrade a filebox store to the current schema version",
	Long: `Upgrade a filebox store offline.

filebox upgrades its store on first use; this tool does the same ahead of
time, after taking a backup, and can show what would change without
touching the file. Stop any 'filebox serve' holding the store first.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("config", "", "Path to a YAML config file")
	rootCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	rootCmd.Flags().String("backup", "", "Backup path (default: <db>.backup)")
	rootCmd.Flags().Duration("timeout", 5*time.Second, "How long to wait for the file lock")
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	log.Init(cfg.LogConfig())

	dbPath := cfg.DatabasePath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database not found at %s", dbPath)
	}

	fmt.Println("filebox schema migration")
	fmt.Println("========================")
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Dry run:  %v\n", dryRun)

	migrations := storage.DefaultMigrations()
	target := storage.TargetVersion(migrations)

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout, ReadOnly: dryRun})
	if err != nil {
		return fmt.Errorf("failed to open database (is filebox serve running?): %w", err)
	}
	defer db.Close()

	var stored int
	if err := db.View(func(tx *bolt.Tx) error {
		stored = storage.StoredVersion(tx)
		return nil
	}); err != nil {
		return err
	}
	fmt.Printf("Stored schema version: %d\n", stored)
	fmt.Printf("Target schema version: %d\n", target)

	if stored > target {
		return fmt.Errorf("%w: store is at version %d, this build supports up to %d",
			storage.ErrVersionConflict, stored, target)
	}

	pending := storage.PendingMigrations(stored, migrations)
	if len(pending) == 0 {
		fmt.Println("✓ Store is up to date")
		return nil
	}

	fmt.Printf("\nPending migrations (%d):\n", len(pending))
	for _, m := range pending {
		fmt.Printf("  v%d  %s\n", m.Version, m.Name)
	}

	if dryRun {
		fmt.Println("\nDry run completed. No changes made.")
		fmt.Println("Run without --dry-run to apply the migrations.")
		return nil
	}

	if backupPath == "" {
		backupPath = dbPath + ".backup"
	}
	fmt.Printf("\nCreating backup: %s\n", backupPath)
	if err := backup(db, backupPath); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	fmt.Println("✓ Backup created successfully")

	var applied []storage.Migration
	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		applied, err = storage.Migrate(tx, migrations)
		return err
	})
	if err != nil {
		return fmt.Errorf("migration failed, store left at version %d: %w", stored, err)
	}

	for _, m := range applied {
		fmt.Printf("✓ Applied v%d  %s\n", m.Version, m.Name)
	}
	fmt.Printf("\n✓ Store upgraded to schema version %d\n", target)
	return nil
}

// backup writes a consistent copy of db to path
func backup(db *bolt.DB, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	err = db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
