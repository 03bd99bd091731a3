package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Listen         string                `yaml:"listen" json:"listen"`
	Keys           *KeysConfig           `yaml:"keys" json:"keys"`
	AuthorizedKeys *AuthorizedKeysConfig `yaml:"authorized_keys" json:"authorized_keys"`
	Logging        *LoggingConfig        `yaml:"logging" json:"logging"`
	Metrics        *MetricsConfig        `yaml:"metrics" json:"metrics"`
	Health         *HealthConfig         `yaml:"health" json:"health"`
}

// KeysConfig locates the long-term key files
type KeysConfig struct {
	PrivateFile string `yaml:"private_file" json:"private_file"`
	PublicFile  string `yaml:"public_file" json:"public_file"`
}

// AuthorizedKeysConfig controls the server-side trust anchor
type AuthorizedKeysConfig struct {
	Path    string `yaml:"path" json:"path"`
	Enforce bool   `yaml:"enforce" json:"enforce"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadFromFile loads configuration from a file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	body := SubstituteEnvVars(string(data))

	// Try to parse as YAML first
	if err := yaml.Unmarshal([]byte(body), cfg); err != nil {
		// Try JSON if YAML fails
		if err := json.Unmarshal([]byte(body), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile saves configuration to a file
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:7878"
	}
	if cfg.Keys == nil {
		cfg.Keys = &KeysConfig{}
	}
	if cfg.Keys.PrivateFile == "" {
		cfg.Keys.PrivateFile = "privatekey.srt"
	}
	if cfg.Keys.PublicFile == "" {
		cfg.Keys.PublicFile = "publickey.pub"
	}
	if cfg.AuthorizedKeys == nil {
		cfg.AuthorizedKeys = &AuthorizedKeysConfig{Enforce: true}
	}
	if cfg.AuthorizedKeys.Path == "" {
		cfg.AuthorizedKeys.Path = "authorized_keys"
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9464"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Health == nil {
		cfg.Health = &HealthConfig{}
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}
