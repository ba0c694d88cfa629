package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AI2HU/chatstats/internal/config"
	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/db/mongodb"
	"github.com/AI2HU/chatstats/internal/db/sqlite"
	"github.com/AI2HU/chatstats/internal/logger"
	"github.com/AI2HU/chatstats/internal/models"
)

var (
	cfgFile  string
	cfg      *config.Config
	database db.Store
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chatstats",
	Short: "Daily chat usage tracker",
	Long: `Chatstats tracks per-character and per-group daily usage of a chat
application: message counts, message tokens, and the cumulative prompt
tokens of every generation request.

The host application pushes its lifecycle events into the chatstats API;
aggregation runs in a single background accumulator that owns the store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip init for the init command itself
		if cmd.Name() == "init" {
			return nil
		}

		// Load configuration
		if cfgFile == "" {
			cfgFile = config.GetConfigPath()
		}

		if !config.Exists(cfgFile) {
			return fmt.Errorf("configuration file not found. Run 'chatstats init' to create one")
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger.Init(logger.ParseLogLevel(cfg.LogLevel), os.Stdout)

		// Initialize the usage store
		database, err = newStore(cfg)
		if err != nil {
			return err
		}

		if err := database.Connect(context.Background()); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if database != nil {
			return database.Disconnect(context.Background())
		}
		return nil
	},
}

// newStore builds the configured storage provider
func newStore(cfg *config.Config) (db.Store, error) {
	storeConfig := &models.Config{
		Provider: cfg.Storage.Provider,
		URI:      cfg.Storage.URI,
		Database: cfg.Storage.Database,
		Options:  cfg.Storage.Options,
	}

	switch storeConfig.Provider {
	case "sqlite", "":
		return sqlite.New(storeConfig)
	case "mongodb":
		return mongodb.New(storeConfig)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", storeConfig.Provider)
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chatstats/config.yaml)")

	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(migrateCmd)
}
