package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Events    EventsConfig    `yaml:"events"`
	Report    ReportConfig    `yaml:"report"`
	API       APIConfig       `yaml:"api"`
	LogLevel  string          `yaml:"log_level,omitempty"`
}

// StorageConfig represents usage store configuration
type StorageConfig struct {
	Provider string            `yaml:"provider"` // sqlite, mongodb
	URI      string            `yaml:"uri"`
	Database string            `yaml:"database"`
	Options  map[string]string `yaml:"options,omitempty"`
}

// TokenizerConfig selects and configures the token counting provider
type TokenizerConfig struct {
	Provider      string  `yaml:"provider"` // google, remote, estimate
	Model         string  `yaml:"model,omitempty"`
	APIKey        string  `yaml:"api_key,omitempty"`
	BaseURL       string  `yaml:"base_url,omitempty"`
	RatePerSecond float64 `yaml:"rate_per_second,omitempty"`
	TokenPadding  int     `yaml:"token_padding,omitempty"`
	CharsPerToken float64 `yaml:"chars_per_token,omitempty"` // heuristic fallback divisor
}

// EventsConfig tunes the router-to-aggregator channel
type EventsConfig struct {
	QueueSize int `yaml:"queue_size,omitempty"`
}

// ReportConfig configures the scheduled daily summary
type ReportConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CronExpr string `yaml:"cron_expr,omitempty"`
}

// APIConfig configures the HTTP ingestion/read server
type APIConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       string `yaml:"port,omitempty"`
	CORSOrigin string `yaml:"cors_origin,omitempty"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Provider: "sqlite",
			URI:      "chatstats.db",
			Database: "chatstats",
		},
		Tokenizer: TokenizerConfig{
			Provider:      "estimate",
			RatePerSecond: 5,
			CharsPerToken: 3.5,
		},
		Events: EventsConfig{
			QueueSize: 256,
		},
		Report: ReportConfig{
			Enabled:  true,
			CronExpr: "0 0 * * *",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: "8990",
		},
		LogLevel: "INFO",
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatstats/config.yaml"
	}
	return filepath.Join(home, ".chatstats", "config.yaml")
}

// Exists checks if config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
