package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/batch-sub-translator/internal/llm"
	"github.com/MimeLyc/batch-sub-translator/pkg/file"
)

// RuntimeSettings are the values the HTTP API may change while serving.
type RuntimeSettings struct {
	Provider       string `json:"provider"`
	APIURL         string `json:"api_url"`
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	CronExpr       string `json:"cron_expr"`
	TargetLanguage string `json:"target_language"`
	PromptName     string `json:"prompt_name"`
}

func (s RuntimeSettings) Validate() error {
	p, err := llm.Provider(s.Provider)
	if err != nil {
		return err
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return fmt.Errorf("api_key is required")
	}
	if p.APIURL == "" && strings.TrimSpace(s.APIURL) == "" {
		return fmt.Errorf("api_url is required for provider %q", s.Provider)
	}
	if p.Model == "" && strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("model is required for provider %q", s.Provider)
	}
	if strings.TrimSpace(s.CronExpr) != "" {
		if _, err := cron.ParseStandard(s.CronExpr); err != nil {
			return fmt.Errorf("invalid cron_expr: %w", err)
		}
	}
	if strings.TrimSpace(s.TargetLanguage) == "" {
		return fmt.Errorf("target_language is required")
	}
	if _, err := language.Parse(s.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target_language: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to show to clients.
func (s RuntimeSettings) Redacted() RuntimeSettings {
	if n := len(s.APIKey); n > 4 {
		s.APIKey = strings.Repeat("*", n-4) + s.APIKey[n-4:]
	} else if n > 0 {
		s.APIKey = "****"
	}
	return s
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		Provider:       c.LLM.Provider,
		APIURL:         c.LLM.APIURL,
		APIKey:         c.LLM.APIKey,
		Model:          c.LLM.Model,
		CronExpr:       c.Watch.CronExpr,
		TargetLanguage: c.Translate.TargetLanguage,
		PromptName:     c.Translate.PromptName,
	}
}

// WithRuntimeSettings overlays non-empty settings onto the config.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		c.ApplyRuntimeSettings(settings)
	}
}

func (c *Config) ApplyRuntimeSettings(settings RuntimeSettings) {
	if strings.TrimSpace(settings.Provider) != "" {
		c.LLM.Provider = settings.Provider
	}
	if strings.TrimSpace(settings.APIURL) != "" {
		c.LLM.APIURL = settings.APIURL
	}
	if strings.TrimSpace(settings.APIKey) != "" {
		c.LLM.APIKey = settings.APIKey
	}
	if strings.TrimSpace(settings.Model) != "" {
		c.LLM.Model = settings.Model
	}
	if strings.TrimSpace(settings.CronExpr) != "" {
		c.Watch.CronExpr = settings.CronExpr
	}
	if _, err := language.Parse(settings.TargetLanguage); err == nil {
		c.Translate.TargetLanguage = settings.TargetLanguage
	}
	c.Translate.PromptName = settings.PromptName
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	if err := file.WriteAtomic(path, content); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// RuntimeSettingsStore holds the current settings and persists updates.
type RuntimeSettingsStore struct {
	path string

	mu       sync.RWMutex
	current  RuntimeSettings
	onUpdate []func(RuntimeSettings)
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

// OnUpdate registers fn to run after every successful update.
func (s *RuntimeSettingsStore) OnUpdate(fn func(RuntimeSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = append(s.onUpdate, fn)
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// UpdateRuntimeSettings validates and stores next. An empty API key keeps
// the current one so clients never need to echo the secret back.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	s.mu.Lock()
	if strings.TrimSpace(next.APIKey) == "" {
		next.APIKey = s.current.APIKey
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		s.mu.Unlock()
		return RuntimeSettings{}, err
	}
	s.current = next
	hooks := append([]func(RuntimeSettings){}, s.onUpdate...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(next)
	}
	return next, nil
}
