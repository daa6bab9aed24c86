// Package config manages application configuration from various sources.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig defines how to reach the chat backend.
type ServerConfig struct {
	Endpoint string            `json:"endpoint,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// RetrievalConfig carries the default retrieval knobs forwarded with every
// chat request. Zero values are omitted from the request payload.
type RetrievalConfig struct {
	Filters        map[string]string `json:"filters,omitempty"`
	Limit          int               `json:"limit,omitempty"`
	ScoreThreshold float64           `json:"scoreThreshold,omitempty"`
}

// StreamConfig tunes the stream consumer itself.
type StreamConfig struct {
	// StallTimeoutSeconds is the idle window after which a stream with no
	// received bytes is failed. Resets on every chunk.
	StallTimeoutSeconds int `json:"stallTimeoutSeconds,omitempty"`
}

// Config is the main configuration structure for the application.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Stream    StreamConfig    `json:"stream"`
	Debug     bool            `json:"debug,omitempty"`
}

// Application constants
const (
	defaultLogLevel = "info"
	appName         = "chatstream"

	defaultEndpoint            = "http://localhost:8091/chat"
	defaultStallTimeoutSeconds = 60
)

// Global configuration instance
var cfg *Config

// Load initializes the configuration from environment variables and config files.
// If debug is true, debug mode is enabled and log level is set to debug.
// It returns an error if configuration loading fails.
func Load(workingDir string, debug bool) (*Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	cfg = &Config{}

	configureViper()
	setDefaults(debug)

	// Read global config
	if err := readConfig(viper.ReadInConfig()); err != nil {
		return cfg, err
	}

	// Load and merge local config
	mergeLocalConfig(workingDir)

	// Apply configuration to the struct
	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	defaultLevel := slog.LevelInfo
	if cfg.Debug {
		defaultLevel = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(defaultLevel)

	if err := Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// configureViper sets up viper's configuration paths and environment variables.
func configureViper() {
	viper.SetConfigName(fmt.Sprintf(".%s", appName))
	viper.SetConfigType("json")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", appName))
	viper.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.AutomaticEnv()
}

// setDefaults configures default values for configuration options.
func setDefaults(debug bool) {
	viper.SetDefault("server.endpoint", defaultEndpoint)
	viper.SetDefault("stream.stallTimeoutSeconds", defaultStallTimeoutSeconds)

	if debug {
		viper.SetDefault("debug", true)
		viper.Set("log.level", "debug")
	} else {
		viper.SetDefault("debug", false)
		viper.SetDefault("log.level", defaultLogLevel)
	}
}

// readConfig handles the result of reading a configuration file.
func readConfig(err error) error {
	if err == nil {
		return nil
	}

	// It's okay if the config file doesn't exist
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}

	return fmt.Errorf("failed to read config: %w", err)
}

// mergeLocalConfig loads and merges configuration from the local directory.
func mergeLocalConfig(workingDir string) {
	local := viper.New()
	local.SetConfigName(fmt.Sprintf(".%s", appName))
	local.SetConfigType("json")
	local.AddConfigPath(workingDir)

	if err := local.ReadInConfig(); err == nil {
		viper.MergeConfigMap(local.AllSettings())
	}
}

// Validate checks if the configuration is valid and applies defaults where needed.
func Validate() error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if cfg.Stream.StallTimeoutSeconds <= 0 {
		cfg.Stream.StallTimeoutSeconds = defaultStallTimeoutSeconds
	}
	return nil
}

// Get returns the current configuration.
// It's safe to call this function multiple times.
func Get() *Config {
	return cfg
}

// StallTimeout returns the configured stall window as a duration.
func StallTimeout() time.Duration {
	if cfg == nil {
		return defaultStallTimeoutSeconds * time.Second
	}
	return time.Duration(cfg.Stream.StallTimeoutSeconds) * time.Second
}
