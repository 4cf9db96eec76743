// Package config loads server and CLI settings from defaults, an optional
// YAML file and PSYTEST_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/psytest/internal/ratelimit"
)

// Config holds all settings.
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Database   DatabaseConfig            `yaml:"database"`
	RateLimits map[string]ratelimit.Rule `yaml:"rate_limits"`
	Privacy    PrivacyConfig             `yaml:"privacy"`
	Cache      CacheConfig               `yaml:"cache"`
	Retention  RetentionConfig           `yaml:"retention"`
	Log        LogConfig                 `yaml:"log"`
}

// ServerConfig configures the HTTP listener and its structural checks.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	BodyLimit       int64    `yaml:"body_limit"`
	RequiredHeaders []string `yaml:"required_headers"`

	// ClientIPHeader carries the connecting client address from the edge
	// proxy. Requests without it use the TCP peer when
	// FallbackToRemoteAddr is set and share one "unknown" bucket otherwise.
	ClientIPHeader       string `yaml:"client_ip_header"`
	FallbackToRemoteAddr bool   `yaml:"fallback_to_remote_addr"`
}

// DatabaseConfig selects storage. An empty DSN uses the default sqlite
// file under the XDG data directory.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// PrivacyConfig holds the IP hash key. An empty key means a random
// per-process key.
type PrivacyConfig struct {
	IPHashKey string `yaml:"ip_hash_key"`
}

// CacheConfig sets cache lifetimes.
type CacheConfig struct {
	ResultTTL  time.Duration `yaml:"result_ttl"`
	ListingTTL time.Duration `yaml:"listing_ttl"`
}

// RetentionConfig controls the periodic sweep.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

// LogConfig selects log level and format ("text" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:                 ":8080",
			BodyLimit:            64 << 10,
			RequiredHeaders:      []string{"User-Agent"},
			ClientIPHeader:       "CF-Connecting-IP",
			FallbackToRemoteAddr: true,
		},
		RateLimits: ratelimit.DefaultRules(),
		Cache: CacheConfig{
			ResultTTL:  24 * time.Hour,
			ListingTTL: 900 * time.Second,
		},
		Retention: RetentionConfig{
			Enabled:  true,
			MaxAge:   90 * 24 * time.Hour,
			Interval: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load layers an optional YAML file and the environment over the
// defaults. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// Rate limit classes named in the file replace the default rule for
	// that class; other classes keep their defaults.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ConfigFromEnv builds a Config from environment variables, falling back
// to defaults for unset values.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	err := cfg.applyEnv()
	return cfg, err
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PSYTEST_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PSYTEST_DB"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("PSYTEST_IP_HASH_KEY"); v != "" {
		c.Privacy.IPHashKey = v
	}
	if v := os.Getenv("PSYTEST_CLIENT_IP_HEADER"); v != "" {
		c.Server.ClientIPHeader = v
	}
	if v := os.Getenv("PSYTEST_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PSYTEST_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("PSYTEST_BODY_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PSYTEST_BODY_LIMIT: %w", err)
		}
		c.Server.BodyLimit = n
	}
	if v := os.Getenv("PSYTEST_FALLBACK_REMOTE_ADDR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PSYTEST_FALLBACK_REMOTE_ADDR: %w", err)
		}
		c.Server.FallbackToRemoteAddr = b
	}
	if v := os.Getenv("PSYTEST_RETENTION_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PSYTEST_RETENTION_MAX_AGE: %w", err)
		}
		c.Retention.MaxAge = d
	}
	for class, rule := range c.RateLimits {
		key := "PSYTEST_RATE_" + strings.ToUpper(class) + "_LIMIT"
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			rule.Limit = n
			c.RateLimits[class] = rule
		}
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.BodyLimit <= 0 {
		return fmt.Errorf("server.body_limit must be positive, got %d", c.Server.BodyLimit)
	}
	for class, r := range c.RateLimits {
		if r.Limit < 0 {
			return fmt.Errorf("rate_limits.%s.limit must not be negative", class)
		}
		if r.Limit > 0 && r.Window <= 0 {
			return fmt.Errorf("rate_limits.%s.window must be positive", class)
		}
	}
	if len(c.Privacy.IPHashKey) > 64 {
		return errors.New("privacy.ip_hash_key must be at most 64 bytes")
	}
	if c.Retention.Enabled {
		if c.Retention.MaxAge <= 0 {
			return errors.New("retention.max_age must be positive")
		}
		if c.Retention.Interval <= 0 {
			return errors.New("retention.interval must be positive")
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Logger builds a slog.Logger writing to w.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
