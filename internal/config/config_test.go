package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "LLM_API_KEY", "LLM_API_URL", "LLM_MODEL", "LLM_MAX_TOKENS",
		"LLM_TEMPERATURE", "LLM_TIMEOUT", "LLM_RETRY_ATTEMPTS", "BATCH_SIZE", "CONTEXT_SIZE",
		"THREADS", "PROMPT_NAME", "PROMPT_FILE", "TARGET_LANGUAGE", "TERM_MAP_FILE", "SHOW_INFO", "HTTP_ADDR", "DATA_DIR", "WATCH_DIRS",
		"CRON_EXPR", "CORS_ORIGINS", "LOG_LEVEL", ConfigPathEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Translate.BatchSize)
	assert.Equal(t, 2, cfg.Translate.ContextSize)
	assert.Equal(t, 1, cfg.Translate.Workers)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, filepath.Join("./data", "subtrans.db"), cfg.DBPath())
	assert.Equal(t, language.SimplifiedChinese, cfg.TargetTag())
	assert.True(t, cfg.Translate.ShowInfo)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "subtrans.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[llm]
provider = "grok"
model = "file-model"
timeout = 30

[translate]
batch_size = 8
threads = 3

[watch]
dirs = ["/media/a"]
cron_expr = "*/5 * * * *"
`), 0o644))

	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("LLM_API_KEY", "env-key")

	cfg, err := Load(path, func(c *Config) { c.Translate.ContextSize = 4 })
	require.NoError(t, err)

	assert.Equal(t, "grok", cfg.LLM.Provider)
	assert.Equal(t, "file-model", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Translate.BatchSize)
	assert.Equal(t, 3, cfg.Translate.Workers)
	assert.Equal(t, 4, cfg.Translate.ContextSize)
	assert.Equal(t, []string{"/media/a"}, cfg.Watch.Dirs)

	p, err := cfg.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.x.ai/v1/chat/completions", p.APIURL)
	assert.Equal(t, "file-model", p.Model)
	assert.Equal(t, "env-key", p.APIKey)
	assert.Equal(t, 30*time.Second, p.Timeout)
	require.NoError(t, p.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Translate.BatchSize)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)

	t.Setenv("LLM_PROVIDER", "nope")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("BATCH_SIZE", "0")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("BATCH_SIZE", "")
	t.Setenv("WATCH_DIRS", "/a, /b")
	t.Setenv("CRON_EXPR", "bad cron")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadClampsThreads(t *testing.T) {
	clearEnv(t)
	t.Setenv("THREADS", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Translate.Workers)
}

func TestLoadListFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCH_DIRS", "/a, /b,,")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Watch.Dirs)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
}

func TestLoadBoolFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHOW_INFO", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Translate.ShowInfo)

	t.Setenv("SHOW_INFO", "maybe")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Translate.ShowInfo)
}

func TestPromptFilePath(t *testing.T) {
	cfg := Default()
	cfg.Server.DataDir = "/var/lib/subtrans"
	assert.Equal(t, filepath.Join("/var/lib/subtrans", "prompts.yaml"), cfg.PromptFilePath())

	cfg.Translate.PromptFile = "/etc/subtrans/prompts.yaml"
	assert.Equal(t, "/etc/subtrans/prompts.yaml", cfg.PromptFilePath())
}
