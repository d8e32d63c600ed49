// internal/simulator/config.go
package simulator

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config describes the simulated service.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	Version  string `yaml:"version"`
	// APIKey, when set, is required on mutating calls.
	APIKey string `yaml:"api_key"`

	LevelDurationMillis int `yaml:"level_duration_ms"`
	TickMillis          int `yaml:"tick_ms"`
	StartDelayMillis    int `yaml:"start_delay_ms"`
	// FailAtLevel fails a run halfway through the level with this concurrency.
	FailAtLevel int `yaml:"fail_at_level"`
}

// DefaultConfig returns a simulator that sweeps each level in three seconds.
func DefaultConfig() Config {
	return Config{
		Host:                "127.0.0.1",
		Port:                8080,
		BasePath:            "/api/v1/benchmark",
		Version:             "0.1.0-sim",
		LevelDurationMillis: 3000,
		TickMillis:          250,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Host) == "" {
		c.Host = def.Host
	}
	if c.Port <= 0 {
		c.Port = def.Port
	}
	c.BasePath = "/" + strings.Trim(strings.TrimSpace(c.BasePath), "/")
	if c.BasePath == "/" {
		c.BasePath = def.BasePath
	}
	if c.Version == "" {
		c.Version = def.Version
	}
	if c.LevelDurationMillis <= 0 {
		c.LevelDurationMillis = def.LevelDurationMillis
	}
	if c.TickMillis <= 0 {
		c.TickMillis = def.TickMillis
	}
	if c.TickMillis > c.LevelDurationMillis {
		c.TickMillis = c.LevelDurationMillis
	}
	return c
}

// Addr is the listen address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c Config) levelDuration() time.Duration {
	return time.Duration(c.LevelDurationMillis) * time.Millisecond
}

func (c Config) tick() time.Duration { return time.Duration(c.TickMillis) * time.Millisecond }

func (c Config) startDelay() time.Duration {
	return time.Duration(c.StartDelayMillis) * time.Millisecond
}

// LoadConfig reads a YAML config file and fills unset fields with defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.StartDelayMillis < 0 {
		return Config{}, fmt.Errorf("start_delay_ms must not be negative")
	}
	return cfg.withDefaults(), nil
}
