package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "simplified", cfg.Provider)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(cfg.DataDir, "sessions"), cfg.SessionsDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "db"), cfg.DatabaseDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "documents"), cfg.OutputDir)
	assert.Equal(t, 3, cfg.Pipeline.RetryAttempts)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
data_dir: `+dataDir+`
log_level: DEBUG
ai:
  host: http://models.local:8080
  knowledge_model: big
  categories: [work, personal, misc]
chunking:
  threshold: 5000
  overlap_messages: 1
pipeline:
  retry_delay: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://models.local:8080", cfg.AI.KnowledgeHost)
	assert.Equal(t, "http://models.local:8080", cfg.AI.ClassifierHost)
	assert.Equal(t, 5000, cfg.Chunking.Threshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.RetryDelay)
	// untouched fields keep their defaults
	assert.Equal(t, 3, cfg.Pipeline.RetryAttempts)

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://models.local:8080/v1", aiCfg.KnowledgeHost)
	assert.Equal(t, "big", aiCfg.KnowledgeModel)
	assert.Equal(t, []string{"work", "personal", "misc"}, aiCfg.Categories)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown provider", "provider: nope\n"},
		{"bad log level", "log_level: loud\n"},
		{"zero threshold", "chunking:\n  threshold: 0\n"},
		{"negative overlap", "chunking:\n  overlap_messages: -1\n"},
		{"no categories", "ai:\n  categories: []\n"},
		{"zero retries", "pipeline:\n  retry_attempts: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "chunking: [not, a, map]\n"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Pipeline.RetryDelay = 2 * time.Second
	path := filepath.Join(cfg.DataDir, "nested", FileName)
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, 2*time.Second, loaded.Pipeline.RetryDelay)
	assert.Equal(t, cfg.AI.Categories, loaded.AI.Categories)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("VELLUM_TEST_ROOT", "/srv/vellum")
	assert.Equal(t, "/srv/vellum/db", expandPath("$VELLUM_TEST_ROOT/db"))
	assert.Equal(t, "", expandPath(""))

	home, err := os.UserHomeDir()
	if err == nil {
		assert.Equal(t, filepath.Join(home, "notes"), expandPath("~/notes"))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("imported", "items", 3)

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "msg=imported")
	assert.Contains(t, file.String(), `"msg":"imported"`)
	assert.Contains(t, file.String(), `"items":3`)
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vellum.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("to file")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestSetupLogger_NoFile(t *testing.T) {
	logger, cleanup := SetupLogger("", slog.LevelWarn)
	require.NotNil(t, logger)
	assert.NoError(t, cleanup())
}
