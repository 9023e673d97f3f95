// ABOUTME: Configuration loading and parsing for coven-botkit
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "COVEN_BOTKIT_CONFIG"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config represents the complete coven-botkit configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Bot        BotConfig        `yaml:"bot" toml:"bot"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	Typing     TypingConfig     `yaml:"typing" toml:"typing"`
	Transcript TranscriptConfig `yaml:"transcript" toml:"transcript"`
	Dedupe     DedupeConfig     `yaml:"dedupe" toml:"dedupe"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing" toml:"tracing"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr  string          `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr  string          `yaml:"grpc_addr" toml:"grpc_addr"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// RateLimitConfig limits inbound activities per conversation. Zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

// BotConfig identifies the bot to channels and skills
type BotConfig struct {
	AppID          string `yaml:"app_id" toml:"app_id"`
	AppPassword    string `yaml:"app_password" toml:"app_password"`
	OAuthScope     string `yaml:"oauth_scope" toml:"oauth_scope"`
	ChannelService string `yaml:"channel_service" toml:"channel_service"`

	// MarkdownChannels lists channels that receive markdown rendered as HTML.
	MarkdownChannels []string `yaml:"markdown_channels" toml:"markdown_channels"`
	// SpeakVoice, when set, fills Speak on outgoing messages for voice channels.
	SpeakVoice string `yaml:"speak_voice" toml:"speak_voice"`
}

// AuthConfig holds inbound token validation settings. An empty secret
// disables authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	Issuer    string `yaml:"issuer" toml:"issuer"`
	Audience  string `yaml:"audience" toml:"audience"`
}

// StorageConfig selects the state storage backend
type StorageConfig struct {
	Driver string      `yaml:"driver" toml:"driver"`
	Path   string      `yaml:"path" toml:"path"`
	Redis  RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// TypingConfig configures the typing indicator middleware
type TypingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	Delay  time.Duration `yaml:"-" toml:"-"`
	Period time.Duration `yaml:"-" toml:"-"`

	DelayRaw  string `yaml:"delay" toml:"delay"`
	PeriodRaw string `yaml:"period" toml:"period"`
}

// TranscriptConfig configures transcript logging
type TranscriptConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"` // sqlite file; empty keeps transcripts in memory
}

// DedupeConfig configures duplicate inbound activity suppression
type DedupeConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	MaxSize int  `yaml:"max_size" toml:"max_size"`

	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Path      string `yaml:"path" toml:"path"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// TracingConfig holds OpenTelemetry export configuration
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled"`
	Endpoint    string  `yaml:"endpoint" toml:"endpoint"`
	ServiceName string  `yaml:"service_name" toml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" toml:"sample_rate"`
}

// DefaultPath returns the config path from COVEN_BOTKIT_CONFIG, falling back
// to $XDG_CONFIG_HOME/coven/botkit.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "coven", "botkit.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes configuration bytes, applies defaults and validates.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:3978"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.RateLimit.RPS > 0 && c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = int(c.Server.RateLimit.RPS) + 1
	}
	if c.Bot.OAuthScope == "" {
		c.Bot.OAuthScope = "https://api.botframework.com"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "botkit:"
	}
	if c.Typing.Delay == 0 {
		c.Typing.Delay = 500 * time.Millisecond
	}
	if c.Typing.Period == 0 {
		c.Typing.Period = 2 * time.Second
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 5 * time.Minute
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "botkit"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "coven-botkit"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.RateLimit.RPS < 0 {
		return fmt.Errorf("server.rate_limit.rps must not be negative")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of memory, sqlite, redis", c.Storage.Driver)
	}

	if c.Typing.Delay < 0 || c.Typing.Period <= 0 {
		return fmt.Errorf("typing.delay must not be negative and typing.period must be positive")
	}
	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"typing.delay", cfg.Typing.DelayRaw, &cfg.Typing.Delay},
		{"typing.period", cfg.Typing.PeriodRaw, &cfg.Typing.Period},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
