package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// chdir keeps Load from picking up a stray config.yaml in the repo.
func chdir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Spots.DailyTotal)
	assert.Equal(t, 5, cfg.Spots.MonthlyTotal)
	assert.Equal(t, 60, cfg.RateLimit.WindowSecs)
	assert.Equal(t, 20, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 500, cfg.RateLimit.RapidGapMillis)
	assert.Equal(t, 10, cfg.RateLimit.RapidThreshold)
	assert.Equal(t, 24, cfg.RateLimit.BanHours)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, 60, cfg.Chat.MaxTranscript)
	assert.NotEmpty(t, cfg.Anthropic.ChatModel)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("INTAKE_SERVER_PORT", "9090")
	t.Setenv("INTAKE_STORE_DRIVER", "sqlite")
	t.Setenv("INTAKE_ANTHROPIC_KEY", "sk-test")
	t.Setenv("INTAKE_SPOTS_DAILY_TOTAL", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
	assert.Equal(t, 3, cfg.Spots.DailyTotal)
}

func TestLoadConfigFile(t *testing.T) {
	chdir(t)
	data, err := yaml.Marshal(map[string]any{
		"server": map[string]any{"port": 7070},
		"chat":   map[string]any{"greeting": "Hi there!"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile("config.yaml", data, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "Hi there!", cfg.Chat.Greeting)
	// Untouched keys keep defaults.
	assert.Equal(t, 10, cfg.Spots.DailyTotal)
}

func TestValidateServe(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	assert.Error(t, cfg.Validate("serve"), "missing anthropic key")

	cfg.Anthropic.Key = "sk-test"
	assert.Error(t, cfg.Validate("serve"), "missing database url for postgres")

	cfg.Store.DatabaseURL = "postgres://localhost/intake"
	assert.NoError(t, cfg.Validate("serve"))

	sqlite := &Config{}
	sqlite.Store.Driver = "sqlite"
	sqlite.Anthropic.Key = "sk-test"
	assert.NoError(t, sqlite.Validate("serve"), "sqlite needs no database url")
}

func TestValidateStore(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	assert.Error(t, cfg.Validate("store"))

	cfg.Store.DatabaseURL = "postgres://localhost/intake"
	assert.NoError(t, cfg.Validate("store"))
}
