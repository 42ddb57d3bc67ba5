package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (NARRADAR_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: NARRADAR_PROVIDER -> provider,
	// NARRADAR_WINDOW_DAYS -> window_days, etc.
	if err := k.Load(env.Provider("NARRADAR_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "NARRADAR_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderGoogle:    true,
	ProviderOpenAI:    true,
	ProviderAnthropic: true,
	ProviderOllama:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Ecosystem == "" {
		return fmt.Errorf("ecosystem is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of google, openai, anthropic, ollama", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("worker_concurrency must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("window_days must be at least 1")
	}
	if c.StalenessDays < 1 {
		return fmt.Errorf("staleness_days must be at least 1")
	}
	if c.DailyDecayRate < 0 || c.DailyDecayRate > 1 {
		return fmt.Errorf("daily_decay_rate must be in 0..1, got %v", c.DailyDecayRate)
	}
	if c.LLMRPM < 0 {
		return fmt.Errorf("llm_rpm must be non-negative")
	}
	return nil
}

// StalenessThreshold returns the staleness window as a duration.
func (c *Config) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessDays) * 24 * time.Hour
}

// ReclaimTimeout returns how long a row may sit in processing before the
// recovery sweep returns it to pending.
func (c *Config) ReclaimTimeout() time.Duration {
	return time.Duration(c.ReclaimAfterMin) * time.Minute
}
