package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/storage"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "FILEBOX_"

// Config is the filebox configuration. Values are taken from defaults, then
// the YAML file, then FILEBOX_* environment variables.
type Config struct {
	DataDir string        `yaml:"data_dir" env:"DATA_DIR"`
	Store   StoreConfig   `yaml:"store" envPrefix:"STORE_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// StoreConfig holds store lifecycle settings
type StoreConfig struct {
	File          string        `yaml:"file" env:"FILE"`                     // Database file name inside DataDir
	OpenTimeout   time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`     // File lock wait per attempt
	MaxAttempts   int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`     // Open/upgrade retry ceiling
	RetryBackoff  time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`   // First retry delay, doubled each time
	WatchReleases bool          `yaml:"watch_releases" env:"WATCH_RELEASES"` // Give the store up to newer versions
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// MetricsConfig holds settings for the serve command's HTTP endpoints
type MetricsConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// Default returns the built-in configuration
func Default() *Config {
	opts := storage.DefaultOptions("")
	return &Config{
		DataDir: defaultDataDir(),
		Store: StoreConfig{
			File:          storage.DefaultFileName,
			OpenTimeout:   opts.OpenTimeout,
			MaxAttempts:   opts.MaxAttempts,
			RetryBackoff:  opts.RetryBackoff,
			WatchReleases: opts.WatchReleases,
		},
		Log: LogConfig{
			Level: string(log.InfoLevel),
		},
		Metrics: MetricsConfig{
			Addr:     "127.0.0.1:9090",
			Interval: 30 * time.Second,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filebox"
	}
	return filepath.Join(home, ".filebox")
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Store.File == "" {
		errs = append(errs, errors.New("store.file is required"))
	} else if filepath.Base(c.Store.File) != c.Store.File {
		errs = append(errs, fmt.Errorf("store.file must be a file name, got %q", c.Store.File))
	}
	if c.Store.OpenTimeout <= 0 {
		errs = append(errs, errors.New("store.open_timeout must be positive"))
	}
	if c.Store.MaxAttempts < 1 {
		errs = append(errs, errors.New("store.max_attempts must be at least 1"))
	}
	if c.Store.RetryBackoff < 0 {
		errs = append(errs, errors.New("store.retry_backoff must not be negative"))
	}
	switch log.Level(c.Log.Level) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Metrics.Interval <= 0 {
		errs = append(errs, errors.New("metrics.interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// DatabasePath is the store file inside DataDir
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.Store.File)
}

// StorageOptions converts the store settings for storage.NewManager
func (c *Config) StorageOptions() storage.Options {
	opts := storage.DefaultOptions(c.DataDir)
	opts.Path = c.DatabasePath()
	opts.OpenTimeout = c.Store.OpenTimeout
	opts.MaxAttempts = c.Store.MaxAttempts
	opts.RetryBackoff = c.Store.RetryBackoff
	opts.WatchReleases = c.Store.WatchReleases
	return opts
}

// LogConfig converts the log settings for log.Init
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.ParseLevel(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}
