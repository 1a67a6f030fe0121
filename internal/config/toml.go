// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Interview InterviewConfig  `toml:"interview"`
	Chain     ChainConfig      `toml:"chain"`
	Providers []ProviderConfig `toml:"providers"`
	Cache     CacheConfig      `toml:"cache"`
	Log       LogConfig        `toml:"log"`
	Metrics   MetricsConfig    `toml:"metrics"`
}

// InterviewConfig maps interview-related settings.
type InterviewConfig struct {
	Role         *string `toml:"role"`
	RoleFile     *string `toml:"role-file"`
	Candidate    *string `toml:"candidate"`
	KeywordsFile *string `toml:"keywords-file"`
}

// ChainConfig maps provider fallback settings. Durations use Go syntax
// ("30s", "3m").
type ChainConfig struct {
	Timeout      *string `toml:"timeout"`
	Retries      *int    `toml:"retries"`
	GuardTimeout *string `toml:"guard-timeout"`
}

// ProviderConfig is one [[providers]] entry. Each model becomes a chain
// candidate, in file order.
type ProviderConfig struct {
	Type      string   `toml:"type"`
	Name      string   `toml:"name"`
	Models    []string `toml:"models"`
	APIKeyEnv string   `toml:"api-key-env"`
	BaseURL   string   `toml:"base-url"`
}

type CacheConfig struct {
	Backend  *string `toml:"backend"`
	RedisURL *string `toml:"redis-url"`
	TTL      *string `toml:"ttl"`
}

type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

type MetricsConfig struct {
	Addr *string `toml:"addr"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

func (c FileConfig) validate() error {
	for i, p := range c.Providers {
		if strings.TrimSpace(p.Type) == "" {
			return fmt.Errorf("providers[%d]: type is required", i)
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("providers[%d] (%s): at least one model is required", i, p.Type)
		}
	}
	for field, value := range map[string]*string{
		"chain.timeout":       c.Chain.Timeout,
		"chain.guard-timeout": c.Chain.GuardTimeout,
		"cache.ttl":           c.Cache.TTL,
	} {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
	}
	return nil
}

// ParseDuration parses an optional duration value. A nil value yields zero.
func ParseDuration(value *string) (time.Duration, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(*value))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return d, nil
}
