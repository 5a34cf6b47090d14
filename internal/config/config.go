package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/batch-sub-translator/internal/llm"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

// Config holds all application configuration.
//
// Values are resolved in this order, later sources winning: built-in
// defaults, the TOML file, environment variables (a .env file in the working
// directory is loaded first), then Options supplied by the caller.
//
// Environment Variables:
// LLM Configuration:
// - LLM_PROVIDER: deepseek, grok, openrouter or custom (default: deepseek)
// - LLM_API_KEY: API key for the provider (required to translate)
// - LLM_API_URL: chat completions endpoint, overrides the provider default
// - LLM_MODEL: model name, overrides the provider default
// - LLM_MAX_TOKENS: maximum tokens per reply (default: 8000)
// - LLM_TEMPERATURE: sampling temperature (default: 0.8)
// - LLM_TIMEOUT: per-attempt timeout in seconds (default: 60)
// - LLM_RETRY_ATTEMPTS: attempts per call (default: 20)
// - LLM_SITE_URL / LLM_APP_NAME: optional OpenRouter headers
//
// Translate Configuration:
// - BATCH_SIZE (default: 5), CONTEXT_SIZE (default: 2), THREADS (default: 1)
// - PROMPT_NAME, PROMPT_FILE: style prompt preset and user preset file
// - TARGET_LANGUAGE: BCP 47 tag (default: zh-Hans)
// - TERM_MAP_FILE: terminology JSON file (default: term_map.<src>-<tgt>.json lookup)
// - SHOW_INFO: add tvshow.nfo / movie.nfo metadata to the prompt (default: true)
//
// Server Configuration:
// - HTTP_ADDR (default: :8080), DATA_DIR (default: ./data), JOB_WORKERS (default: 1)
// - CORS_ORIGINS: comma separated allowed origins
//
// Watch Configuration:
// - WATCH_DIRS: comma separated directories, empty disables watching
// - CRON_EXPR (default: "0 * * * *"), OUTPUT_SUFFIX (default: .zh)
//
// Log Configuration:
// - LOG_LEVEL (default: info), LOG_FILE (optional)
type Config struct {
	LLM       LLMConfig       `toml:"llm" json:"llm"`
	Translate TranslateConfig `toml:"translate" json:"translate"`
	Server    ServerConfig    `toml:"server" json:"server"`
	Watch     WatchConfig     `toml:"watch" json:"watch"`
	Log       LogConfig       `toml:"log" json:"log"`
}

// LLMConfig selects the chat completion provider.
type LLMConfig struct {
	Provider      string  `toml:"provider" json:"provider"`
	APIKey        string  `toml:"api_key" json:"-"`
	APIURL        string  `toml:"api_url" json:"api_url"`
	Model         string  `toml:"model" json:"model"`
	MaxTokens     int     `toml:"max_tokens" json:"max_tokens"`
	Temperature   float64 `toml:"temperature" json:"temperature"`
	Timeout       int     `toml:"timeout" json:"timeout"`
	RetryAttempts int     `toml:"retry_attempts" json:"retry_attempts"`
	SiteURL       string  `toml:"site_url" json:"site_url"`
	AppName       string  `toml:"app_name" json:"app_name"`
}

type TranslateConfig struct {
	BatchSize      int    `toml:"batch_size" json:"batch_size"`
	ContextSize    int    `toml:"context_size" json:"context_size"`
	Workers        int    `toml:"threads" json:"threads"`
	PromptName     string `toml:"prompt_name" json:"prompt_name"`
	PromptFile     string `toml:"prompt_file" json:"prompt_file"`
	TargetLanguage string `toml:"target_language" json:"target_language"`
	// TermMapFile forces a terminology file; otherwise one is looked up
	// next to the input and in its parent directories.
	TermMapFile string `toml:"term_map_file" json:"term_map_file"`
	ShowInfo    bool   `toml:"show_info" json:"show_info"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr" json:"addr"`
	DataDir     string   `toml:"data_dir" json:"data_dir"`
	Workers     int      `toml:"workers" json:"workers"`
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
}

type WatchConfig struct {
	Dirs         []string `toml:"dirs" json:"dirs"`
	CronExpr     string   `toml:"cron_expr" json:"cron_expr"`
	OutputSuffix string   `toml:"output_suffix" json:"output_suffix"`
}

type LogConfig struct {
	Level string `toml:"level" json:"level"`
	File  string `toml:"file" json:"file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// ConfigPathEnv names the environment variable holding the TOML file path.
const ConfigPathEnv = "SUBTRANS_CONFIG"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:      "deepseek",
			MaxTokens:     llm.DefaultMaxTokens,
			Temperature:   llm.DefaultTemperature,
			Timeout:       int(llm.DefaultTimeout / time.Second),
			RetryAttempts: llm.DefaultRetryAttempts,
		},
		Translate: TranslateConfig{
			BatchSize:      5,
			ContextSize:    2,
			Workers:        1,
			TargetLanguage: "zh-Hans",
			ShowInfo:       true,
		},
		Server: ServerConfig{
			Addr:    ":8080",
			DataDir: "./data",
			Workers: 1,
		},
		Watch: WatchConfig{
			CronExpr:     "0 * * * *",
			OutputSuffix: ".zh",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// NewFromEnv loads the configuration using the file named by
// SUBTRANS_CONFIG, if any.
func NewFromEnv(opts ...Option) (*Config, error) {
	return Load(os.Getenv(ConfigPathEnv), opts...)
}

// Load builds the configuration from the TOML file at path (optional; a
// missing file is ignored), the environment and opts.
func Load(path string, opts ...Option) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	config := Default()
	if path != "" {
		if err := decodeFile(path, &config); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	for _, opt := range opts {
		opt(&config)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func decodeFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("config file %s not found, using defaults", path)
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(config); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.APIURL, "LLM_API_URL")
	setString(&c.LLM.Model, "LLM_MODEL")
	setInt(&c.LLM.MaxTokens, "LLM_MAX_TOKENS")
	setFloat(&c.LLM.Temperature, "LLM_TEMPERATURE")
	setInt(&c.LLM.Timeout, "LLM_TIMEOUT")
	setInt(&c.LLM.RetryAttempts, "LLM_RETRY_ATTEMPTS")
	setString(&c.LLM.SiteURL, "LLM_SITE_URL")
	setString(&c.LLM.AppName, "LLM_APP_NAME")

	setInt(&c.Translate.BatchSize, "BATCH_SIZE")
	setInt(&c.Translate.ContextSize, "CONTEXT_SIZE")
	setInt(&c.Translate.Workers, "THREADS")
	setString(&c.Translate.PromptName, "PROMPT_NAME")
	setString(&c.Translate.PromptFile, "PROMPT_FILE")
	setString(&c.Translate.TargetLanguage, "TARGET_LANGUAGE")
	setString(&c.Translate.TermMapFile, "TERM_MAP_FILE")
	setBool(&c.Translate.ShowInfo, "SHOW_INFO")

	setString(&c.Server.Addr, "HTTP_ADDR")
	setString(&c.Server.DataDir, "DATA_DIR")
	setInt(&c.Server.Workers, "JOB_WORKERS")
	setList(&c.Server.CORSOrigins, "CORS_ORIGINS")

	setList(&c.Watch.Dirs, "WATCH_DIRS")
	setString(&c.Watch.CronExpr, "CRON_EXPR")
	setString(&c.Watch.OutputSuffix, "OUTPUT_SUFFIX")

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.File, "LOG_FILE")
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.Translate.Workers < 1 {
		log.Warn("threads must be at least 1, got %d; using 1", c.Translate.Workers)
		c.Translate.Workers = 1
	}
	if c.Server.Workers < 1 {
		c.Server.Workers = 1
	}
	if c.Watch.OutputSuffix != "" && !strings.HasPrefix(c.Watch.OutputSuffix, ".") {
		c.Watch.OutputSuffix = "." + c.Watch.OutputSuffix
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if _, err := llm.Provider(c.LLM.Provider); err != nil {
		return err
	}
	if c.Translate.BatchSize < 1 {
		return fmt.Errorf("batch size must be greater than 0, got %d", c.Translate.BatchSize)
	}
	if c.Translate.ContextSize < 0 {
		return fmt.Errorf("context size must not be negative, got %d", c.Translate.ContextSize)
	}
	if _, err := language.Parse(c.Translate.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target language %q: %w", c.Translate.TargetLanguage, err)
	}
	if len(c.Watch.Dirs) > 0 {
		if _, err := cron.ParseStandard(c.Watch.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", c.Watch.CronExpr, err)
		}
	}
	return nil
}

// ProviderConfig resolves the LLM section against the provider defaults.
func (c *Config) ProviderConfig() (llm.ProviderConfig, error) {
	p, err := llm.Provider(c.LLM.Provider)
	if err != nil {
		return llm.ProviderConfig{}, err
	}
	p.APIKey = c.LLM.APIKey
	if c.LLM.APIURL != "" {
		p.APIURL = c.LLM.APIURL
	}
	if c.LLM.Model != "" {
		p.Model = c.LLM.Model
	}
	if c.LLM.MaxTokens > 0 {
		p.MaxTokens = c.LLM.MaxTokens
	}
	p.Temperature = c.LLM.Temperature
	if c.LLM.Timeout > 0 {
		p.Timeout = time.Duration(c.LLM.Timeout) * time.Second
	}
	p.SiteURL = c.LLM.SiteURL
	p.AppName = c.LLM.AppName
	return p, nil
}

// TargetTag returns the parsed target language.
func (c *Config) TargetTag() language.Tag {
	tag, err := language.Parse(c.Translate.TargetLanguage)
	if err != nil {
		return language.SimplifiedChinese
	}
	return tag
}

// DBPath is the job database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Server.DataDir, "subtrans.db")
}

// SettingsPath is the runtime settings file inside the data directory.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Server.DataDir, "settings.json")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			*dst = intValue
		} else {
			log.Warn("ignoring %s=%q: not an integer", key, value)
		}
	}
}

func setFloat(dst *float64, key string) {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = floatValue
		} else {
			log.Warn("ignoring %s=%q: not a number", key, value)
		}
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			*dst = boolValue
		} else {
			log.Warn("ignoring %s=%q: not a boolean", key, value)
		}
	}
}

func setList(dst *[]string, key string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

// PromptFilePath is the user prompt preset file, defaulting to one inside
// the data directory.
func (c *Config) PromptFilePath() string {
	if c.Translate.PromptFile != "" {
		return c.Translate.PromptFile
	}
	return filepath.Join(c.Server.DataDir, "prompts.yaml")
}
