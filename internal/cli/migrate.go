package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/db/sqlite"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run storage schema migrations",
	Long: `Apply pending schema migrations to the SQLite usage store.

The MongoDB provider is schemaless; records written under older schema
versions are migrated transparently on read.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVarP(&migrationsDir, "dir", "d", "", "Migrations directory (default is internal/db/migrations)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	store, ok := database.(*sqlite.SQLite)
	if !ok {
		return fmt.Errorf("migrations only apply to the sqlite provider (configured: %s)", cfg.Storage.Provider)
	}

	fmt.Println("🔄 Running storage migrations...")

	if err := db.RunMigrations(store.GetDB(), migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("✅ Migrations completed successfully!")
	return nil
}
