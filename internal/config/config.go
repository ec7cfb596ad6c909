// Package config loads the runtime's configuration from a YAML file with
// an optional .env overlay: the dotenv file seeds the process environment
// first, then the YAML file is parsed, then explicit environment
// variables win over both.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the runtime's full configuration.
type Config struct {
	// Host and Port bind the example server.
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// Debug enables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile switches log output from stdout to rotating files.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`
	// LogDir is where rotated log files land; defaults to "logs".
	LogDir string `yaml:"log-dir" json:"log-dir"`
	// LogsMaxTotalSizeMB bounds the log directory's total size; 0 keeps
	// every rotated file.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	// SigningCacheCapacity bounds the SigV4 signing-key FIFO cache.
	SigningCacheCapacity int `yaml:"signing-cache-capacity" json:"signing-cache-capacity"`

	// AllowEmptyPathSegments opts the router into matching consecutive
	// slashes.
	AllowEmptyPathSegments bool `yaml:"allow-empty-path-segments" json:"allow-empty-path-segments"`

	// Retry tunes the default client retry strategy.
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Streaming configures server-side event-stream behavior.
	Streaming StreamingConfig `yaml:"streaming" json:"streaming"`
}

// RetryConfig tunes the standard retry strategy.
type RetryConfig struct {
	// MaxAttempts bounds total attempts, initial included.
	MaxAttempts int `yaml:"max-attempts" json:"max-attempts"`
	// BaseDelayMS is the first retry's backoff unit in milliseconds.
	BaseDelayMS int `yaml:"base-delay-ms" json:"base-delay-ms"`
	// MaxDelayMS caps a single backoff in milliseconds.
	MaxDelayMS int `yaml:"max-delay-ms" json:"max-delay-ms"`
}

// StreamingConfig holds event-stream serving behavior.
type StreamingConfig struct {
	// KeepAliveSeconds inserts heartbeat frames into idle event streams;
	// <= 0 disables them.
	KeepAliveSeconds int `yaml:"keepalive-seconds,omitempty" json:"keepalive-seconds,omitempty"`
}

func defaults() *Config {
	return &Config{
		Host:                 "127.0.0.1",
		Port:                 8317,
		LogDir:               "logs",
		SigningCacheCapacity: 128,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMS: 100,
			MaxDelayMS:  20000,
		},
	}
}

// Load reads path (optional: a missing file yields defaults), after first
// overlaying a .env file into the process environment if one exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv lets explicit environment variables win over the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RTCORE_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("RTCORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("RTCORE_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
	if v := os.Getenv("RTCORE_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
}

// Addr returns the host:port bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
