package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// ProviderConfig locates the chat completion service.
type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
	Proxy   string `json:"proxy"`
}

// HistoryConfig mirrors the compaction policy knobs.
type HistoryConfig struct {
	TokenThreshold   int    `json:"token_threshold"`
	MaxTokens        int    `json:"max_tokens"`
	CompactingMethod string `json:"compacting_method"`
	KeepTop          int    `json:"keep_top"`
	KeepBottom       int    `json:"keep_bottom"`
}

// Config is the startup configuration. Loaded once; never mutated after.
type Config struct {
	Provider     ProviderConfig `json:"provider"`
	History      HistoryConfig  `json:"history"`
	SystemPrompt string         `json:"system_prompt"`
	NoConfirm    bool           `json:"no_confirm"`
	Verbose      bool           `json:"verbose"`
	CacheFile    string         `json:"cache_file"`
	Workspace    string         `json:"workspace"`
	StateDir     string         `json:"state_dir"`

	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`

	RetryDelaySeconds int `json:"retry_delay_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model: "gpt-3.5-turbo",
		},
		History: HistoryConfig{
			TokenThreshold:   2000,
			MaxTokens:        4000,
			CompactingMethod: "fifo",
			KeepTop:          1,
			KeepBottom:       6,
		},
		CacheFile:         "function_cache.json",
		Workspace:         ".",
		StateDir:          "state",
		RetryDelaySeconds: 3,
	}
}

// Load reads the config file at path (JSON with comments tolerated) over the
// defaults. An empty path returns the defaults. OPENAI_API_KEY fills in a
// missing api_key.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}

// RetryDelay returns the rate-limit backoff as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// Options returns the provider pass-through options.
func (c *Config) Options() map[string]any {
	opts := make(map[string]any)
	if c.Temperature != nil {
		opts["temperature"] = *c.Temperature
	}
	if c.MaxTokens != nil {
		opts["max_tokens"] = *c.MaxTokens
	}
	return opts
}
