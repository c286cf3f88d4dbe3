// Package config loads runtime configuration from defaults, an optional
// YAML file, and AGENTTRAIL_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains runtime configuration for the ingest and serve paths.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Pagination PaginationConfig `yaml:"pagination" mapstructure:"pagination"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	CORS       CORSConfig       `yaml:"cors" mapstructure:"cors"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// LogConfig captures ingestion sink settings.
type LogConfig struct {
	Dir                  string `yaml:"dir" mapstructure:"dir"`
	MaxContentLength     int    `yaml:"max_content_length" mapstructure:"max_content_length"`
	BufferSize           int    `yaml:"buffer_size" mapstructure:"buffer_size"`
	FlushIntervalSeconds int    `yaml:"flush_interval_seconds" mapstructure:"flush_interval_seconds"`
	FlushFailurePolicy   string `yaml:"flush_failure_policy" mapstructure:"flush_failure_policy"` // drop or retry
}

// FlushInterval returns the flush interval as a duration.
func (l LogConfig) FlushInterval() time.Duration {
	return time.Duration(l.FlushIntervalSeconds) * time.Second
}

// ServerConfig captures HTTP server settings.
type ServerConfig struct {
	Port                int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
}

// ReadTimeout returns the configured read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// PaginationConfig bounds query page sizes.
type PaginationConfig struct {
	DefaultPageSize int `yaml:"default_page_size" mapstructure:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size" mapstructure:"max_page_size"`
}

// CacheConfig captures result cache settings.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
	MaxSize    int `yaml:"max_size" mapstructure:"max_size"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RateLimitConfig captures admission limiter settings.
type RateLimitConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Requests      int    `yaml:"requests" mapstructure:"requests"`
	WindowSeconds int    `yaml:"window_seconds" mapstructure:"window_seconds"`
	Backend       string `yaml:"backend" mapstructure:"backend"` // memory or redis
	RedisURL      string `yaml:"redis_url" mapstructure:"redis_url"`
}

// Window returns the admission window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// CORSConfig captures allowed origins for the query API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StorageConfig captures the filesystem access allowlist.
type StorageConfig struct {
	AllowedPaths []string `yaml:"allowed_paths" mapstructure:"allowed_paths"`
}

// LoggingConfig captures process log settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// DefaultLogDir is the log root used when none is configured.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "logs")
	}
	return filepath.Join(home, ".agenttrail", "logs")
}

// Load reads configuration from the provided path (optional) and the
// environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log.dir", DefaultLogDir())
	v.SetDefault("log.max_content_length", 100000)
	v.SetDefault("log.buffer_size", 10)
	v.SetDefault("log.flush_interval_seconds", 5)
	v.SetDefault("log.flush_failure_policy", "drop")

	v.SetDefault("server.port", 5173)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.idle_timeout_seconds", 60)

	v.SetDefault("pagination.default_page_size", 100)
	v.SetDefault("pagination.max_page_size", 1000)

	v.SetDefault("cache.ttl_seconds", 60)
	v.SetDefault("cache.max_size", 100)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 100)
	v.SetDefault("ratelimit.window_seconds", 60)
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.redis_url", "")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("storage.allowed_paths", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agenttrail"))
		}
	}

	v.SetEnvPrefix("AGENTTRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		// Discovery mode: a missing file is fine, a broken one is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// The log root and home directory are always browseable.
	cfg.Storage.AllowedPaths = append(cfg.Storage.AllowedPaths, cfg.Log.Dir)
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Storage.AllowedPaths = append(cfg.Storage.AllowedPaths, home)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	switch c.Log.FlushFailurePolicy {
	case "drop", "retry":
	default:
		return fmt.Errorf("config: invalid flush_failure_policy %q (drop or retry)", c.Log.FlushFailurePolicy)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: invalid ratelimit backend %q (memory or redis)", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && c.RateLimit.RedisURL == "" {
		return fmt.Errorf("config: ratelimit backend redis requires redis_url")
	}
	if c.Pagination.MaxPageSize < 1 {
		return fmt.Errorf("config: max_page_size must be at least 1")
	}
	return nil
}

// PathAllowed reports whether path falls under one of the allowlisted
// roots. Evaluated on the cleaned absolute path before any filesystem
// access.
func (c *Config) PathAllowed(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)
	for _, root := range c.Storage.AllowedPaths {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootAbs = filepath.Clean(rootAbs)
		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
