// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Script() ScriptConfig
	Storage() StorageConfig
	WebDB() WebDBConfig
	Server() ServerConfig
	Envelope() EnvelopeConfig

	SetScriptTimeout(d time.Duration)
	SetStorageBackend(backend string)
	SetServerAddr(addr string)
	SetEnvelopeFormat(format string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	ScriptCfg   ScriptConfig   `mapstructure:"script" yaml:"script"`
	StorageCfg  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	WebDBCfg    WebDBConfig    `mapstructure:"webdb" yaml:"webdb"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	EnvelopeCfg EnvelopeConfig `mapstructure:"envelope" yaml:"envelope"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Script() ScriptConfig     { return c.ScriptCfg }
func (c *Config) Storage() StorageConfig   { return c.StorageCfg }
func (c *Config) WebDB() WebDBConfig       { return c.WebDBCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Envelope() EnvelopeConfig { return c.EnvelopeCfg }

// -- Setters, used by CLI flag overrides --

func (c *Config) SetScriptTimeout(d time.Duration) { c.ScriptCfg.Timeout = d }
func (c *Config) SetStorageBackend(backend string) { c.StorageCfg.Backend = backend }
func (c *Config) SetServerAddr(addr string)        { c.ServerCfg.Addr = addr }
func (c *Config) SetEnvelopeFormat(format string)  { c.EnvelopeCfg.Format = format }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ScriptConfig configures EXECUTE_SCRIPT.
type ScriptConfig struct {
	// Timeout applies when the caller's context carries no deadline.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// StorageConfig selects where localStorage lives.
type StorageConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig holds the Redis connection details.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// WebDBConfig configures EXECUTE_SQL databases. An empty Dir keeps them in memory.
type WebDBConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ServerConfig configures the HTTP transport started by `serve`.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Envelope output formats.
const (
	EnvelopeString     = "string"
	EnvelopeStructured = "structured"
)

// EnvelopeConfig controls how the CLI prints result envelopes: "string" is
// the compact wire text, "structured" is indented JSON.
type EnvelopeConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
}

// NewDefaultConfig returns a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wdatoms")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Script --
	v.SetDefault("script.timeout", "30s")

	// -- Storage --
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "wdatoms:storage:")
	v.SetDefault("storage.redis.ttl", "0s")

	// -- WebDB --
	v.SetDefault("webdb.dir", "")

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:4444")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Envelope --
	v.SetDefault("envelope.format", EnvelopeString)
}

// BindEnv maps WDATOMS_* environment variables onto config keys, e.g.
// WDATOMS_STORAGE_REDIS_ADDR for storage.redis.addr.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("WDATOMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets come from the environment even without a config file entry.
	_ = v.BindEnv("storage.redis.password", "WDATOMS_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.StorageCfg.Redis.Password == "" {
		cfg.StorageCfg.Redis.Password = os.Getenv("WDATOMS_REDIS_PASSWORD")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	if c.ScriptCfg.Timeout <= 0 {
		return fmt.Errorf("script.timeout must be a positive duration")
	}
	switch c.StorageCfg.Backend {
	case StorageMemory:
	case StorageRedis:
		if c.StorageCfg.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required when storage.backend is %q", StorageRedis)
		}
		if c.StorageCfg.Redis.TTL < 0 {
			return fmt.Errorf("storage.redis.ttl must not be negative")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageMemory, StorageRedis, c.StorageCfg.Backend)
	}
	switch c.EnvelopeCfg.Format {
	case EnvelopeString, EnvelopeStructured:
	default:
		return fmt.Errorf("envelope.format must be %q or %q, got %q", EnvelopeString, EnvelopeStructured, c.EnvelopeCfg.Format)
	}
	if c.ServerCfg.Addr == "" {
		return fmt.Errorf("server.addr is a required configuration field")
	}
	return nil
}
