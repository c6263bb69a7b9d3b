package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSecret(t *testing.T, dir, name, value string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value), 0o600))
}

func TestLoadConfig_DefaultsAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "ai_api_key", "sk-test")
	writeSecret(t, dir, "db_password", "s3cret")
	t.Setenv("SECRETS_DIR", dir)
	t.Setenv("AI_CLIENT_TYPE", "ollama")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.AIClientType)
	assert.Equal(t, "sk-test", cfg.AIAPIKey)
	assert.Equal(t, "s3cret", cfg.DBPassword)
	assert.Empty(t, cfg.EmbeddingAPIKey)
	assert.Equal(t, 5, cfg.AIMaxAttempts)
	assert.Equal(t, 2000, cfg.StaticTokenLimit)
	assert.Equal(t, 256, cfg.ChunkTokenLimit)
	assert.Equal(t, 7, cfg.RecentEventDays)
	assert.InDelta(t, 0.75, cfg.SemanticRatio, 1e-9)
	assert.NotContains(t, cfg.getMaskedDSN(), "s3cret")
	assert.Contains(t, cfg.GetDSN(), "s3cret")
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	t.Setenv("SECRETS_DIR", t.TempDir())
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{AIClientType: "openai", MemoryWriteMode: "queue", AIMaxAttempts: 5, ChunkTokenLimit: 256, SemanticRatio: 0.75}
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.AIClientType = "anthropic"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MemoryWriteMode = "sync"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SemanticRatio = 1.5
	assert.Error(t, bad.Validate())
}
