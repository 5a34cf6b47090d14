package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() RuntimeSettings {
	return RuntimeSettings{
		Provider:       "custom",
		APIURL:         "https://example.test/v1/chat/completions",
		APIKey:         "ak-test",
		Model:          "model-test",
		CronExpr:       "*/5 * * * *",
		TargetLanguage: "zh-Hans",
	}
}

func TestRuntimeSettings_Validate(t *testing.T) {
	valid := validSettings()
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.CronExpr = "bad cron"
	require.Error(t, invalid.Validate())

	invalidLang := valid
	invalidLang.TargetLanguage = ""
	require.Error(t, invalidLang.Validate())

	noURL := valid
	noURL.APIURL = ""
	require.Error(t, noURL.Validate())

	builtin := valid
	builtin.Provider = "deepseek"
	builtin.APIURL = ""
	builtin.Model = ""
	require.NoError(t, builtin.Validate())
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "settings.json")
	input := validSettings()

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("LLM_MODEL", "env-model")

	override := validSettings()
	override.PromptName = "news"

	cfg, err := Load("", WithRuntimeSettings(override))
	require.NoError(t, err)

	assert.Equal(t, "custom", cfg.LLM.Provider)
	assert.Equal(t, "ak-test", cfg.LLM.APIKey)
	assert.Equal(t, "model-test", cfg.LLM.Model)
	assert.Equal(t, "*/5 * * * *", cfg.Watch.CronExpr)
	assert.Equal(t, "news", cfg.Translate.PromptName)
	assert.Equal(t, override, cfg.RuntimeSettings())
}

func TestRuntimeSettingsStore_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := NewRuntimeSettingsStore(path, validSettings())
	require.NoError(t, err)

	var notified RuntimeSettings
	store.OnUpdate(func(s RuntimeSettings) { notified = s })

	next := validSettings()
	next.APIKey = ""
	next.Model = "other-model"
	got, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, "ak-test", got.APIKey)
	assert.Equal(t, "other-model", notified.Model)

	onDisk, err := LoadRuntimeSettingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, got, onDisk)

	bad := validSettings()
	bad.CronExpr = "nope"
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)
	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, "other-model", current.Model)
}

func TestRuntimeSettingsRedacted(t *testing.T) {
	s := validSettings()
	s.APIKey = "sk-123456"
	assert.Equal(t, "*****3456", s.Redacted().APIKey)
	assert.Equal(t, "sk-123456", s.APIKey)
}
