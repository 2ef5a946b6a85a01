package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" toml:"concurrency"`
	Retry       RetryConfig       `yaml:"retry" toml:"retry"`
	Logging     LogConfig         `yaml:"logging" toml:"logging"`
}

// ServerConfig contains settings for the HTTP listener and the handlers behind it
type ServerConfig struct {
	Host              string `yaml:"host" toml:"host"`
	Port              int    `yaml:"port" toml:"port"`
	WebRoot           string `yaml:"web_root" toml:"web_root"`
	ReadBufferSize    int    `yaml:"read_buffer_size" toml:"read_buffer_size"` // in bytes
	ChunkSize         int    `yaml:"chunk_size" toml:"chunk_size"`             // in bytes
	ReadTimeout       int    `yaml:"read_timeout" toml:"read_timeout"`         // in seconds
	WriteTimeout      int    `yaml:"write_timeout" toml:"write_timeout"`       // in seconds
	RequestTimeout    int    `yaml:"request_timeout" toml:"request_timeout"`   // in seconds
	SPAFallback       bool   `yaml:"spa_fallback" toml:"spa_fallback"`
	ExposeStoreErrors bool   `yaml:"expose_store_errors" toml:"expose_store_errors"`
}

// DatabaseConfig contains settings for the relational store
type DatabaseConfig struct {
	Driver          string `yaml:"driver" toml:"driver"`
	DSN             string `yaml:"dsn" toml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" toml:"conn_max_lifetime"` // in seconds
	AutoMigrate     bool   `yaml:"auto_migrate" toml:"auto_migrate"`
}

// ConcurrencyConfig contains settings for concurrency control
type ConcurrencyConfig struct {
	MaxTasks int `yaml:"max_tasks" toml:"max_tasks"`
}

// RetryConfig contains settings for retry behavior
type RetryConfig struct {
	Enabled         bool     `yaml:"enabled" toml:"enabled"`
	MaxRetries      int      `yaml:"max_retries" toml:"max_retries"`
	InitialDelay    int      `yaml:"initial_delay" toml:"initial_delay"` // in milliseconds
	MaxDelay        int      `yaml:"max_delay" toml:"max_delay"`         // in milliseconds
	BackoffFactor   float64  `yaml:"backoff_factor" toml:"backoff_factor"`
	JitterFactor    float64  `yaml:"jitter_factor" toml:"jitter_factor"`
	RetryableErrors []string `yaml:"retryable_errors" toml:"retryable_errors"`
}

// LogConfig contains settings for logging
type LogConfig struct {
	LogToFile   bool   `yaml:"log_to_file" toml:"log_to_file"`
	LogFilePath string `yaml:"log_file_path" toml:"log_file_path"`
	MaxSize     int    `yaml:"max_size" toml:"max_size"`       // maximum size in megabytes
	MaxBackups  int    `yaml:"max_backups" toml:"max_backups"` // maximum number of old log files to retain
	MaxAge      int    `yaml:"max_age" toml:"max_age"`         // maximum number of days to retain old log files
	Compress    bool   `yaml:"compress" toml:"compress"`       // compress determines if the rotated log files should be compressed
	AccessLog   bool   `yaml:"access_log" toml:"access_log"`   // print one colored line per request to stdout
}

// Address returns the host:port pair the server listens on
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadDefault returns a configuration with default values
func LoadDefault() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			WebRoot:           "./build",
			ReadBufferSize:    4096,
			ChunkSize:         4096,
			ReadTimeout:       10,
			WriteTimeout:      30,
			RequestTimeout:    5,
			SPAFallback:       false,
			ExposeStoreErrors: false,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:ctf.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: 300,
			AutoMigrate:     true,
		},
		Concurrency: ConcurrencyConfig{
			MaxTasks: 64,
		},
		Retry: RetryConfig{
			Enabled:       true,
			MaxRetries:    5,
			InitialDelay:  200,
			MaxDelay:      5000,
			BackoffFactor: 2.0,
			JitterFactor:  0.1,
			RetryableErrors: []string{
				"connection refused",
				"connection reset",
				"timeout",
				"database is locked",
				"too many connections",
			},
		},
		Logging: LogConfig{
			LogToFile:   false,
			LogFilePath: "ctf-server.log",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      28,
			Compress:    true,
			AccessLog:   false,
		},
	}
}

// Default returns a configuration with default values
// This is an alias for LoadDefault for backward compatibility
func Default() *Config {
	return LoadDefault()
}

// Load reads configuration from a file and merges it with default values.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func Load(configPath string) (*Config, error) {
	// Start with default configuration
	cfg := LoadDefault()

	// Read configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Create a temporary config to parse the file
	var fileCfg Config
	if err := decode(configPath, data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Booleans that default to true need presence, not a zero check, to be turned off
	var switches fileSwitches
	if err := decode(configPath, data, &switches); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	merge(cfg, &fileCfg)
	switches.apply(cfg)
	ApplyEnv(cfg)

	return cfg, nil
}

// LoadOrDefault attempts to load configuration from a file
// If the file doesn't exist or can't be parsed, it returns default configuration
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		// Log the error but continue with defaults
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config from %s: %v\n", configPath, err)
		fmt.Fprintf(os.Stderr, "Using default configuration\n")
		cfg = LoadDefault()

		// Even with default config, honour the environment overrides
		ApplyEnv(cfg)
	}
	return cfg
}

// fileSwitches captures settings whose default is true, so that an explicit
// false in the file can be told apart from an omitted key
type fileSwitches struct {
	Database struct {
		AutoMigrate *bool `yaml:"auto_migrate" toml:"auto_migrate"`
	} `yaml:"database" toml:"database"`
	Retry struct {
		Enabled *bool `yaml:"enabled" toml:"enabled"`
	} `yaml:"retry" toml:"retry"`
}

func (f fileSwitches) apply(cfg *Config) {
	if f.Database.AutoMigrate != nil {
		cfg.Database.AutoMigrate = *f.Database.AutoMigrate
	}
	if f.Retry.Enabled != nil {
		cfg.Retry.Enabled = *f.Retry.Enabled
	}
}

// decode parses data as TOML when path ends in .toml and as YAML otherwise
func decode(path string, data []byte, v interface{}) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

// merge copies every non-zero value of fileCfg over cfg
func merge(cfg, fileCfg *Config) {
	// Merge server configuration
	if fileCfg.Server.Host != "" {
		cfg.Server.Host = fileCfg.Server.Host
	}
	if fileCfg.Server.Port > 0 {
		cfg.Server.Port = fileCfg.Server.Port
	}
	if fileCfg.Server.WebRoot != "" {
		cfg.Server.WebRoot = fileCfg.Server.WebRoot
	}
	if fileCfg.Server.ReadBufferSize > 0 {
		cfg.Server.ReadBufferSize = fileCfg.Server.ReadBufferSize
	}
	if fileCfg.Server.ChunkSize > 0 {
		cfg.Server.ChunkSize = fileCfg.Server.ChunkSize
	}
	if fileCfg.Server.ReadTimeout > 0 {
		cfg.Server.ReadTimeout = fileCfg.Server.ReadTimeout
	}
	if fileCfg.Server.WriteTimeout > 0 {
		cfg.Server.WriteTimeout = fileCfg.Server.WriteTimeout
	}
	if fileCfg.Server.RequestTimeout > 0 {
		cfg.Server.RequestTimeout = fileCfg.Server.RequestTimeout
	}
	if fileCfg.Server.SPAFallback {
		cfg.Server.SPAFallback = fileCfg.Server.SPAFallback
	}
	if fileCfg.Server.ExposeStoreErrors {
		cfg.Server.ExposeStoreErrors = fileCfg.Server.ExposeStoreErrors
	}

	// Merge database configuration
	if fileCfg.Database.Driver != "" {
		cfg.Database.Driver = fileCfg.Database.Driver
	}
	if fileCfg.Database.DSN != "" {
		cfg.Database.DSN = fileCfg.Database.DSN
	}
	if fileCfg.Database.MaxOpenConns > 0 {
		cfg.Database.MaxOpenConns = fileCfg.Database.MaxOpenConns
	}
	if fileCfg.Database.MaxIdleConns > 0 {
		cfg.Database.MaxIdleConns = fileCfg.Database.MaxIdleConns
	}
	if fileCfg.Database.ConnMaxLifetime > 0 {
		cfg.Database.ConnMaxLifetime = fileCfg.Database.ConnMaxLifetime
	}

	// Merge concurrency configuration
	if fileCfg.Concurrency.MaxTasks > 0 {
		cfg.Concurrency.MaxTasks = fileCfg.Concurrency.MaxTasks
	}

	// Merge retry configuration
	if fileCfg.Retry.MaxRetries > 0 {
		cfg.Retry.MaxRetries = fileCfg.Retry.MaxRetries
	}
	if fileCfg.Retry.InitialDelay > 0 {
		cfg.Retry.InitialDelay = fileCfg.Retry.InitialDelay
	}
	if fileCfg.Retry.MaxDelay > 0 {
		cfg.Retry.MaxDelay = fileCfg.Retry.MaxDelay
	}
	if fileCfg.Retry.BackoffFactor > 0 {
		cfg.Retry.BackoffFactor = fileCfg.Retry.BackoffFactor
	}
	if fileCfg.Retry.JitterFactor > 0 {
		cfg.Retry.JitterFactor = fileCfg.Retry.JitterFactor
	}
	if len(fileCfg.Retry.RetryableErrors) > 0 {
		cfg.Retry.RetryableErrors = fileCfg.Retry.RetryableErrors
	}

	// Merge logging configuration
	if fileCfg.Logging.LogToFile {
		cfg.Logging.LogToFile = fileCfg.Logging.LogToFile
	}
	if fileCfg.Logging.LogFilePath != "" {
		cfg.Logging.LogFilePath = fileCfg.Logging.LogFilePath
	}
	if fileCfg.Logging.MaxSize > 0 {
		cfg.Logging.MaxSize = fileCfg.Logging.MaxSize
	}
	if fileCfg.Logging.MaxBackups > 0 {
		cfg.Logging.MaxBackups = fileCfg.Logging.MaxBackups
	}
	if fileCfg.Logging.MaxAge > 0 {
		cfg.Logging.MaxAge = fileCfg.Logging.MaxAge
	}
	if fileCfg.Logging.Compress {
		cfg.Logging.Compress = fileCfg.Logging.Compress
	}
	if fileCfg.Logging.AccessLog {
		cfg.Logging.AccessLog = fileCfg.Logging.AccessLog
	}
}

// ApplyEnv overrides selected settings from CTF_* environment variables
func ApplyEnv(cfg *Config) {
	if dsn := os.Getenv("CTF_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if root := os.Getenv("CTF_WEB_ROOT"); root != "" {
		cfg.Server.WebRoot = root
	}
	if port := os.Getenv("CTF_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
}
