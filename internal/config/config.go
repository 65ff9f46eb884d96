package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDir      = ".webpilot"
	defaultFileName = "config.yaml"
)

type Config struct {
	DeepSeekAPIKey   string `yaml:"deepseek_api_key"`
	ByteDanceAPIKey  string `yaml:"bytedance_api_key"`
	MoonshotAPIKey   string `yaml:"moonshot_api_key"`
	OpenRouterAPIKey string `yaml:"openrouter_api_key"`

	DefaultModel           string `yaml:"default_model"`
	MaxSteps               int    `yaml:"max_steps"`
	RequestIntervalSeconds int    `yaml:"request_interval_seconds"`
	PageFetchTimeoutSecs   int    `yaml:"page_fetch_timeout_seconds"`
}

func Default() Config {
	return Config{
		MaxSteps:               40,
		RequestIntervalSeconds: 3,
		PageFetchTimeoutSecs:   20,
	}
}

// Load reads ~/.webpilot/config.yaml if present and falls back to
// environment variables for any API key left unset. A missing file is not
// an error.
func Load() (Config, error) {
	cfg := Default()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	path := filepath.Join(homeDir, defaultDir, defaultFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.DeepSeekAPIKey == "" {
		c.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if c.ByteDanceAPIKey == "" {
		c.ByteDanceAPIKey = os.Getenv("BYTE_DANCE_API_KEY")
	}
	if c.MoonshotAPIKey == "" {
		c.MoonshotAPIKey = os.Getenv("MOONSHOT_API_KEY")
	}
	if c.OpenRouterAPIKey == "" {
		c.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	}
}

func (c Config) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalSeconds) * time.Second
}

func (c Config) PageFetchTimeout() time.Duration {
	return time.Duration(c.PageFetchTimeoutSecs) * time.Second
}
