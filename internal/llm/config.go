package llm

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultMaxTokens   = 8000
	DefaultTemperature = 0.8
	DefaultTimeout     = 60 * time.Second
)

// ProviderConfig describes one chat-completion endpoint. It is a plain value:
// callers build it once and hand it to NewClient.
type ProviderConfig struct {
	Name        string        `json:"name"`
	APIURL      string        `json:"api_url"`
	APIKey      string        `json:"-"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	SiteURL     string        `json:"site_url,omitempty"`
	AppName     string        `json:"app_name,omitempty"`
}

var builtinProviders = map[string]ProviderConfig{
	"deepseek": {
		Name:   "deepseek",
		APIURL: "https://api.deepseek.com/v1/chat/completions",
		Model:  "deepseek-chat",
	},
	"grok": {
		Name:   "grok",
		APIURL: "https://api.x.ai/v1/chat/completions",
		Model:  "grok-3-fast",
	},
	"openrouter": {
		Name:   "openrouter",
		APIURL: "https://openrouter.ai/api/v1/chat/completions",
		Model:  "openai/gpt-4o-mini",
	},
}

// ProviderNames lists the built-in providers plus "custom".
func ProviderNames() []string {
	names := make([]string, 0, len(builtinProviders)+1)
	for name := range builtinProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, "custom")
}

// Provider returns the defaults for a built-in provider. "custom" returns a
// config with only the name set; URL and model must be supplied.
func Provider(name string) (ProviderConfig, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "custom" {
		return ProviderConfig{
			Name:        name,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			Timeout:     DefaultTimeout,
		}, nil
	}
	p, ok := builtinProviders[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unsupported provider %q (supported: %s)", name, strings.Join(ProviderNames(), ", "))
	}
	p.MaxTokens = DefaultMaxTokens
	p.Temperature = DefaultTemperature
	p.Timeout = DefaultTimeout
	return p, nil
}

// Validate validates the configuration
func (c ProviderConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required for provider %q", c.Name)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// Headers returns the headers for the LLM API request
func (c ProviderConfig) Headers() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}

	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}

	return headers
}
