package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jchantrell/otadump/internal/source"
)

type Config struct {
	LogLevel       string     `mapstructure:"log_level"`
	LogFormat      string     `mapstructure:"log_format"`
	ShowOperations bool       `mapstructure:"show_operations"`
	Mmap           bool       `mapstructure:"mmap"`
	BufferSize     int        `mapstructure:"buffer_size"`
	CacheBlocks    int        `mapstructure:"cache_blocks"`
	Database       string     `mapstructure:"database"`
	NoProgress     bool       `mapstructure:"no_progress"`
	HTTP           HTTPConfig `mapstructure:"http"`
}

// HTTPConfig applies to remote payloads only.
type HTTPConfig struct {
	UserAgent string            `mapstructure:"user_agent"`
	Headers   map[string]string `mapstructure:"headers"`
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Load reads configuration from cfgFile, or from otadump.yaml in the home or
// working directory when cfgFile is empty. A missing default file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("show_operations", false)
	v.SetDefault("mmap", false)
	v.SetDefault("buffer_size", source.DefaultBlockSize)
	v.SetDefault("cache_blocks", source.DefaultCacheBlocks)
	v.SetDefault("database", "")
	v.SetDefault("no_progress", false)
	v.SetDefault("http.user_agent", "otadump")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName("otadump")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("OTADUMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("unsupported log level '%s': supported levels are %s", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if !contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("unsupported log format '%s': supported formats are %s", c.LogFormat, strings.Join(validLogFormats, ", "))
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer_size cannot be negative, got %d", c.BufferSize)
	}
	if c.CacheBlocks < 1 {
		return fmt.Errorf("cache_blocks must be at least 1, got %d", c.CacheBlocks)
	}
	for key := range c.HTTP.Headers {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("http header name cannot be empty")
		}
	}
	return nil
}

// SourceOptions converts the I/O settings for source.Open.
func (c *Config) SourceOptions() source.Options {
	opts := source.Options{
		Mmap:        c.Mmap,
		BufferSize:  c.BufferSize,
		CacheBlocks: c.CacheBlocks,
	}
	if c.HTTP.UserAgent != "" {
		opts.HTTP = append(opts.HTTP, source.WithUserAgent(c.HTTP.UserAgent))
	}
	for key, value := range c.HTTP.Headers {
		opts.HTTP = append(opts.HTTP, source.WithHeader(key, value))
	}
	return opts
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
