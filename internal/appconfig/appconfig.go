// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// legacyConfigPath is the path checked when the default file is missing.
	legacyConfigPath = "config.json"
	// DefaultBaseURL is the service prefix used when the config omits one.
	DefaultBaseURL = "http://localhost:8080/api/v1/benchmark"
	// defaultRequestTimeout is the default timeout for HTTP requests.
	defaultRequestTimeout = 30 * time.Second
	// defaultStatusPoll is the status polling interval while a run is active.
	defaultStatusPoll = 2 * time.Second
	// defaultResultPoll is the result polling interval while a run is executing.
	defaultResultPoll = 3 * time.Second
	// defaultFinalSnapshotAttempts bounds the result fetches made after a run ends.
	defaultFinalSnapshotAttempts = 3
	// defaultReconnectInitial is the first delay before reconnecting the push channel.
	defaultReconnectInitial = 500 * time.Millisecond
	// defaultReconnectMax caps the push channel reconnect delay.
	defaultReconnectMax = 15 * time.Second
)

// Config represents the top-level application configuration.
type Config struct {
	BaseURL                string `json:"baseURL" mapstructure:"baseURL"`
	APIKey                 string `json:"apiKey,omitempty" mapstructure:"apiKey"`
	StatusPollMillis       int    `json:"statusPollMillis,omitempty" mapstructure:"statusPollMillis"`
	ResultPollMillis       int    `json:"resultPollMillis,omitempty" mapstructure:"resultPollMillis"`
	FinalSnapshotAttempts  int    `json:"finalSnapshotAttempts,omitempty" mapstructure:"finalSnapshotAttempts"`
	ReconnectInitialMillis int    `json:"reconnectInitialMillis,omitempty" mapstructure:"reconnectInitialMillis"`
	ReconnectMaxMillis     int    `json:"reconnectMaxMillis,omitempty" mapstructure:"reconnectMaxMillis"`
	TimeoutSeconds         int    `json:"timeout,omitempty" mapstructure:"timeout"`
	Debug                  bool   `json:"debug" mapstructure:"debug"`
	JSONMode               bool   `json:"jsonMode" mapstructure:"jsonMode"`
	Plain                  bool   `json:"plain" mapstructure:"plain"`
	LogFile                string `json:"logFile,omitempty" mapstructure:"logFile"`
	ArchivePath            string `json:"archivePath,omitempty" mapstructure:"archivePath"`
	ConfigPath             string `json:"-" mapstructure:"-"`
}

// ServiceURL returns the configured base URL without a trailing slash.
func (c Config) ServiceURL() string {
	if u := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); u != "" {
		return u
	}
	return DefaultBaseURL
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StatusPollInterval returns the status polling interval.
func (c Config) StatusPollInterval() time.Duration {
	return millisOr(c.StatusPollMillis, defaultStatusPoll)
}

// ResultPollInterval returns the result polling interval.
func (c Config) ResultPollInterval() time.Duration {
	return millisOr(c.ResultPollMillis, defaultResultPoll)
}

// FinalSnapshotRetries returns how many result fetches are made after a run ends.
func (c Config) FinalSnapshotRetries() int {
	if c.FinalSnapshotAttempts <= 0 {
		return defaultFinalSnapshotAttempts
	}
	return c.FinalSnapshotAttempts
}

// ReconnectInitial returns the first reconnect delay of the push channel.
func (c Config) ReconnectInitial() time.Duration {
	return millisOr(c.ReconnectInitialMillis, defaultReconnectInitial)
}

// ReconnectMax returns the reconnect delay cap of the push channel.
func (c Config) ReconnectMax() time.Duration {
	return millisOr(c.ReconnectMaxMillis, defaultReconnectMax)
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "sweepwatch.log"
}

// ArchiveEnabled reports whether finished runs are kept locally.
func (c Config) ArchiveEnabled() bool {
	return strings.TrimSpace(c.ArchivePath) != ""
}

func millisOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Validate checks values that would otherwise fail later and less clearly.
func (c Config) Validate() error {
	u, err := url.Parse(c.ServiceURL())
	if err != nil {
		return fmt.Errorf("invalid baseURL %q: %w", c.BaseURL, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("baseURL %q must use http or https", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("baseURL %q has no host", c.BaseURL)
	}
	if c.ReconnectMaxMillis > 0 && c.ReconnectInitialMillis > c.ReconnectMaxMillis {
		return errors.New("reconnectInitialMillis must not exceed reconnectMaxMillis")
	}
	return nil
}

// ResolvePath returns the config file to read for path. The default path
// falls back to the legacy location when only that one exists. The returned
// error wraps os.ErrNotExist when no candidate exists.
func ResolvePath(path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	candidates := []string{path}
	if path == DefaultConfigPath {
		candidates = append(candidates, legacyConfigPath)
	}
	for _, candidate := range candidates {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("could not read config file %q: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no configuration file found (searched %q): %w", strings.Join(candidates, `", "`), os.ErrNotExist)
}

// Load reads and validates the configuration file at path on its own,
// without flag or environment overrides.
func Load(path string) (Config, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return Config{}, err
	}
	config, err := loadFromPath(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file %q: %w", resolved, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	config.ConfigPath = resolved
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}
