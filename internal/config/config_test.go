package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite", cfg.Storage.Provider)
	assert.Equal(t, "estimate", cfg.Tokenizer.Provider)
	assert.Equal(t, 3.5, cfg.Tokenizer.CharsPerToken)
	assert.Equal(t, 256, cfg.Events.QueueSize)
	assert.Equal(t, "0 0 * * *", cfg.Report.CronExpr)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.Provider = "mongodb"
	cfg.Storage.URI = "mongodb://localhost:27017"
	cfg.Tokenizer.Provider = "google"
	cfg.Tokenizer.APIKey = "test-key"
	cfg.Tokenizer.TokenPadding = 64
	cfg.Report.Enabled = false

	require.NoError(t, cfg.Save(path))
	assert.True(t, Exists(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
