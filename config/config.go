package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"drainage/health"
)

// Config is the analyzer's file configuration: where the table lives, how to
// reach it, and the rule thresholds.
type Config struct {
	Storage struct {
		Region          string `yaml:"region"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
	} `yaml:"storage"`

	Rules health.RuleConfig `yaml:"rules"`
}

// Default returns a config carrying the documented rule defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Rules = health.DefaultRuleConfig()
	return cfg
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("validating rules: %w", err)
	}

	return cfg, nil
}
