package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // default database path is relative
	path := writeConfig(t, `
telegram:
  bot_token: "test-token"
google:
  client_id: "cid"
  client_secret: "secret"
  base_url: "https://donna.example.com"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.Telegram.BotToken)
	assert.Equal(t, "data/donna.db", cfg.Database.Path)
	assert.Equal(t, "America/New_York", cfg.Defaults.Timezone)
	assert.Equal(t, 10*time.Minute, cfg.ReminderLead())
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
telegram:
  bot_token: "t"
database:
  path: "`+filepath.Join(dir, "custom.db")+`"
reminders:
  lead_minutes: 15
  poll_interval_seconds: 5
defaults:
  timezone: "Europe/Berlin"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.ReminderLead())
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, "Europe/Berlin", cfg.Defaults.Timezone)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DONNA_TEST_TOKEN", "from-env")
	path := writeConfig(t, `
telegram:
  bot_token: "${DONNA_TEST_TOKEN}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
