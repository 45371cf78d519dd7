package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(discard)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Zero(t, cfg.CommandTTL)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: 127.0.0.1:9000
db_path: /var/lib/bridge.db
command_ttl: 10m
agent_rate_limit: 5
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_PATH", "/tmp/override.db")
	t.Setenv("AGENT_API_KEY", "k")

	cfg, err := Load(discard)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Address)
	assert.Equal(t, "/tmp/override.db", cfg.DBPath)
	assert.Equal(t, 10*time.Minute, cfg.CommandTTL)
	assert.Equal(t, 5.0, cfg.AgentRateLimit)
	assert.Equal(t, "k", cfg.AgentAPIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ADMIN_USERNAME=ops\n"), 0o600))

	// godotenv never overrides variables that are already set
	t.Setenv("ADMIN_USERNAME", "")
	os.Unsetenv("ADMIN_USERNAME")

	cfg, err := Load(discard)
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.AdminUsername)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duration", env: map[string]string{"COMMAND_TTL": "soon"}},
		{name: "negative ttl", env: map[string]string{"COMMAND_TTL": "-1m"}},
		{name: "bad chat id", env: map[string]string{"TELEGRAM_CHAT_ID": "abc"}},
		{name: "token without chat", env: map[string]string{"TELEGRAM_BOT_TOKEN": "1:x"}},
		{name: "bot commands without token", env: map[string]string{"TELEGRAM_COMMANDS": "true"}},
		{name: "bad bool", env: map[string]string{"TELEGRAM_COMMANDS": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(discard)
			assert.Error(t, err)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
