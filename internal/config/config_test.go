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
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8765", cfg.Listen)
	assert.Equal(t, "/ws", cfg.WSPath)
	assert.Equal(t, "/mcp", cfg.MCPPath)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "memory", cfg.ConversationBackend)
	assert.Equal(t, "gpt-oss:120b", cfg.LLMModel)
	assert.Nil(t, cfg.LLMTemperature)
	assert.Equal(t, 5, cfg.MaxToolIterations)
	assert.Equal(t, 10*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 90*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, "@every 30s", cfg.SweepSchedule)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ORION_LISTEN", "127.0.0.1:9000")
	t.Setenv("ORION_DB_DRIVER", "memory")
	t.Setenv("ORION_LLM_TEMPERATURE", "0.2")
	t.Setenv("ORION_MAX_TOOL_ITERATIONS", "3")
	t.Setenv("ORION_DEFAULT_ALLOWED_APPS", "notepad, vim")
	t.Setenv("ORION_WS_ORIGIN_PATTERNS", "localhost:*, ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "memory", cfg.DBDriver)
	require.NotNil(t, cfg.LLMTemperature)
	assert.InDelta(t, 0.2, *cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 3, cfg.MaxToolIterations)
	assert.Equal(t, []string{"notepad", "vim"}, cfg.DefaultGrant(nil).Apps)
	assert.Equal(t, []string{"localhost:*"}, cfg.OriginPatterns())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ORION_LLM_MODEL=llama3\n"), 0o600))
	t.Setenv("ORION_LLM_MODEL", "")
	require.NoError(t, os.Unsetenv("ORION_LLM_MODEL"))

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.LLMModel)
}

func TestValidate(t *testing.T) {
	t.Setenv("ORION_DB_DRIVER", "mysql")
	t.Setenv("ORION_CONVERSATION_BACKEND", "disk")
	t.Setenv("ORION_MAX_TOOL_ITERATIONS", "0")
	t.Setenv("ORION_MCP_PATH", "/ws")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{"ORION_DB_DRIVER", "ORION_CONVERSATION_BACKEND", "ORION_MAX_TOOL_ITERATIONS", "must differ"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestDefaultGrant(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	grant := cfg.DefaultGrant([]string{"list_directory", "open_app"})
	assert.Equal(t, []string{"list_directory", "open_app"}, grant.Tools)
	assert.Equal(t, []string{"C:/Users", "D:/Projects", "/home", "/Users"}, grant.Paths)
	assert.Contains(t, grant.Apps, "notepad")
	assert.Len(t, grant.Apps, 7)

	cfg.DefaultAllowedTools = []string{" open_app ", ""}
	assert.Equal(t, []string{"open_app"}, cfg.DefaultGrant([]string{"list_directory"}).Tools)
}
