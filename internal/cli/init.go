package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AI2HU/chatstats/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize chatstats configuration",
	Long:  `Interactive wizard to set up chatstats configuration including storage and tokenizer.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("🚀 Welcome to Chatstats Setup")
	fmt.Println("=============================")
	fmt.Println()

	// Check if config already exists
	configPath := config.GetConfigPath()
	if config.Exists(configPath) {
		fmt.Printf("Configuration file already exists at: %s\n", configPath)
		confirmed, err := promptYesNo(reader, "Do you want to overwrite it? (y/N): ")
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Setup cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()

	// Storage configuration
	fmt.Println("\n📊 Storage Configuration")
	fmt.Println("-------------------------")

	provider, err := promptOptional(reader, "Storage provider (sqlite/mongodb) [sqlite]: ", "sqlite")
	if err != nil {
		return err
	}
	cfg.Storage.Provider = provider

	switch provider {
	case "sqlite":
		uri, err := promptOptional(reader, "Database file path [~/.chatstats/chatstats.db]: ", "~/.chatstats/chatstats.db")
		if err != nil {
			return err
		}
		cfg.Storage.URI = uri
	case "mongodb":
		uri, err := promptOptional(reader, "MongoDB URI [mongodb://localhost:27017]: ", "mongodb://localhost:27017")
		if err != nil {
			return err
		}
		cfg.Storage.URI = uri

		dbName, err := promptOptional(reader, "Database name [chatstats]: ", "chatstats")
		if err != nil {
			return err
		}
		cfg.Storage.Database = dbName
	default:
		return fmt.Errorf("unsupported storage provider: %s", provider)
	}

	// Tokenizer configuration
	fmt.Println("\n🔢 Tokenizer Configuration")
	fmt.Println("---------------------------")

	tokProvider, err := promptOptional(reader, "Token counting provider (google/remote/estimate) [estimate]: ", "estimate")
	if err != nil {
		return err
	}
	cfg.Tokenizer.Provider = tokProvider

	switch tokProvider {
	case "google":
		apiKey, err := promptOptional(reader, "Google API key []: ", "")
		if err != nil {
			return err
		}
		cfg.Tokenizer.APIKey = apiKey

		model, err := promptOptional(reader, "Model [gemini-1.5-flash]: ", "gemini-1.5-flash")
		if err != nil {
			return err
		}
		cfg.Tokenizer.Model = model
	case "remote":
		baseURL, err := promptOptional(reader, "Tokenize endpoint base URL [http://localhost:8000]: ", "http://localhost:8000")
		if err != nil {
			return err
		}
		cfg.Tokenizer.BaseURL = baseURL
	case "estimate":
		// Heuristic only, nothing to configure beyond the divisor.
	default:
		return fmt.Errorf("unsupported tokenizer provider: %s", tokProvider)
	}

	paddingStr, err := promptOptional(reader, "Prompt token padding [0]: ", "0")
	if err != nil {
		return err
	}
	padding, err := strconv.Atoi(paddingStr)
	if err != nil {
		return fmt.Errorf("invalid token padding: %s", paddingStr)
	}
	cfg.Tokenizer.TokenPadding = padding

	// Verify the storage configuration before saving
	fmt.Println("\n🔌 Testing storage connection...")

	testStore, err := newStore(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := testStore.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	defer testStore.Disconnect(ctx)

	if err := testStore.Ping(ctx); err != nil {
		return fmt.Errorf("storage ping failed: %w", err)
	}

	fmt.Println("✅ Storage connection successful!")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("\n✅ Configuration saved to: %s\n", configPath)
	fmt.Println("Run 'chatstats serve' to start the usage tracker.")
	return nil
}
