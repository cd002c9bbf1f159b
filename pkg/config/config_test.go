package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "data/charla.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.MaxHistory)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 800, cfg.MaxOutputTokens)
	assert.Equal(t, 4096, cfg.MaxPromptTokens)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Empty(t, cfg.GeminiAPIKey)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHARLA_ADDR", ":9999")
	t.Setenv("CHARLA_MAX_HISTORY", "4")
	t.Setenv("CHARLA_GEMINI_API_KEY", "env-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 4, cfg.MaxHistory)
	assert.Equal(t, "env-key", cfg.GeminiAPIKey)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "charla.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`addr: ":7070"
max_output_tokens: 256
elevenlabs_voice: my-voice
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 256, cfg.MaxOutputTokens)
	assert.Equal(t, "my-voice", cfg.ElevenLabsVoice)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.MaxHistory)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
