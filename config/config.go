package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. GRADEBOX_SANDBOX_TIMEOUT_MS.
const EnvPrefix = "GRADEBOX"

// Config represents the application configuration
type Config struct {
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SandboxConfig holds controller limits
type SandboxConfig struct {
	TimeoutMS       int `mapstructure:"timeout_ms"`
	StartTimeoutSec int `mapstructure:"start_timeout_sec"`
	QueueSize       int `mapstructure:"queue_size"`
}

// RuntimeConfig holds interpreter settings
type RuntimeConfig struct {
	ModulePath string `mapstructure:"module_path"`
	MemoryMB   int    `mapstructure:"memory_mb"`
	DiskCache  bool   `mapstructure:"disk_cache"`
	CacheDir   string `mapstructure:"cache_dir"`
}

// SecurityConfig holds analyzer settings
type SecurityConfig struct {
	PolicyFile     string `mapstructure:"policy_file"`
	MaxSourceBytes int    `mapstructure:"max_source_bytes"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads configuration from config.yaml in . or ./config, falling back
// to defaults when no file exists.
func New() (*Config, error) {
	return Load("")
}

// Load reads the configuration. An empty path searches for config.yaml in
// the working directory and ./config; a missing search result is not an
// error, but a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sandbox.timeout_ms", 10000)
	v.SetDefault("sandbox.start_timeout_sec", 30)
	v.SetDefault("sandbox.queue_size", 16)

	v.SetDefault("runtime.module_path", "")
	v.SetDefault("runtime.memory_mb", 256)
	v.SetDefault("runtime.disk_cache", true)
	v.SetDefault("runtime.cache_dir", "")

	v.SetDefault("security.policy_file", "")
	v.SetDefault("security.max_source_bytes", 1<<20)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Sandbox.TimeoutMS <= 0 {
		return fmt.Errorf("sandbox.timeout_ms must be positive, got: %d", c.Sandbox.TimeoutMS)
	}

	if c.Sandbox.StartTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.start_timeout_sec must be positive, got: %d", c.Sandbox.StartTimeoutSec)
	}

	if c.Sandbox.QueueSize <= 0 {
		return fmt.Errorf("sandbox.queue_size must be positive, got: %d", c.Sandbox.QueueSize)
	}

	if c.Runtime.MemoryMB <= 0 {
		return fmt.Errorf("runtime.memory_mb must be positive, got: %d", c.Runtime.MemoryMB)
	}

	if c.Security.MaxSourceBytes <= 0 {
		return fmt.Errorf("security.max_source_bytes must be positive, got: %d", c.Security.MaxSourceBytes)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	return nil
}

// Timeout returns the per-execution timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutMS) * time.Millisecond
}

// StartTimeout returns the interpreter bootstrap bound as a duration
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.Sandbox.StartTimeoutSec) * time.Second
}
