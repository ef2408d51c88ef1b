package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Agent.MaxIterations)
	assert.Equal(t, 15, cfg.Agent.SubagentIterations)
	assert.True(t, cfg.Tools.RestrictToWorkspace)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Provider.APIBase)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Provider.Model = "deepseek-chat"
	cfg.Provider.FallbackModels = []string{"gpt-4o-mini"}
	cfg.Channels.Telegram = &TelegramConfig{
		Token:     "123:abc",
		AllowFrom: []string{"42|alice"},
	}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", loaded.Provider.Model)
	assert.Equal(t, []string{"gpt-4o-mini"}, loaded.Provider.FallbackModels)
	require.NotNil(t, loaded.Channels.Telegram)
	assert.Equal(t, "123:abc", loaded.Channels.Telegram.Token)
	assert.Equal(t, []string{"42|alice"}, loaded.Channels.Telegram.AllowFrom)
}

func TestLoadFileValuesOverrideDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agent":{"maxIterations":3}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
	// Untouched fields keep defaults
	assert.Equal(t, 4096, cfg.Agent.MaxTokens)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider":{"model":"from-file"}}`), 0o644))

	t.Setenv("OKAPI_MODEL", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Provider.Model)
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
