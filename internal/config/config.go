package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	WebRisk WebRiskConfig `yaml:"webrisk"`
	Status  StatusConfig  `yaml:"status"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
}

type ServerConfig struct {
	HTTP ServerHTTPConfig `yaml:"http"`
}

type ServerHTTPConfig struct {
	Addr string `yaml:"addr"`

	ReadTimeout    string `yaml:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout"`
	MaxRequestSize string `yaml:"max_request_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// StorageConfig locates the operation store and the durable name log. Unset
// paths live under DataDir. LogOnly skips the sqlite store; listings then
// carry names only.
type StorageConfig struct {
	DataDir    string         `yaml:"data_dir"`
	SQLitePath string         `yaml:"sqlite_path"`
	LogPath    string         `yaml:"log_path"`
	LogOnly    bool           `yaml:"log_only"`
	Rotation   RotationConfig `yaml:"rotation"`
}

// RotationConfig bounds the name log. MaxSizeMB 0 never rotates and
// MaxBackups 0 keeps every rotated file.
type RotationConfig struct {
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
}

type WebRiskConfig struct {
	BaseURL string `yaml:"base_url"`
	// KeyPath is the server's own service-account key, used for status lookups.
	KeyPath string   `yaml:"key_path"`
	Timeout string   `yaml:"timeout"`
	Scopes  []string `yaml:"scopes"`
}

type StatusConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type MetricsConfig struct {
	// Enabled defaults to true when unset.
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

type HealthConfig struct {
	Path          string `yaml:"path"`
	ReadinessPath string `yaml:"readiness_path"`
}

// envOverrides lists the variables that win over the YAML file.
type envOverrides struct {
	HTTPAddr        string `env:"URISUBMIT_HTTP_ADDR"`
	LogLevel        string `env:"URISUBMIT_LOG_LEVEL"`
	LogFormat       string `env:"URISUBMIT_LOG_FORMAT"`
	DataDir         string `env:"URISUBMIT_DATA_DIR"`
	KeyPath         string `env:"WEBRISK_KEY_PATH"`
	BaseURL         string `env:"URISUBMIT_WEBRISK_BASE_URL"`
	TracingEndpoint string `env:"URISUBMIT_OTEL_ENDPOINT"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg, true)
}

// LoadOrDefault loads path, or returns the defaults when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return Default()
}

// Default returns the built-in configuration with environment overrides.
func Default() (*Config, error) {
	return finish(&Config{}, true)
}

// LoadFromBytes loads configuration from bytes without applying environment
// overrides. This is intended for testing where env vars should not interfere.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg, false)
}

func finish(cfg *Config, withEnv bool) (*Config, error) {
	if withEnv {
		if err := applyEnvOverrides(cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = "127.0.0.1:8080"
	}
	if cfg.Server.HTTP.ReadTimeout == "" {
		cfg.Server.HTTP.ReadTimeout = "30s"
	}
	if cfg.Server.HTTP.WriteTimeout == "" {
		cfg.Server.HTTP.WriteTimeout = "2m"
	}
	if cfg.Server.HTTP.MaxRequestSize == "" {
		cfg.Server.HTTP.MaxRequestSize = "1MB"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/var/lib/urisubmit"
	}
	if cfg.Storage.LogPath == "" {
		cfg.Storage.LogPath = filepath.Join(cfg.Storage.DataDir, "operations")
	}
	if cfg.Storage.LogOnly {
		cfg.Storage.SQLitePath = ""
	} else if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.DataDir, "operations.db")
	}
	if cfg.WebRisk.BaseURL == "" {
		cfg.WebRisk.BaseURL = "https://webrisk.googleapis.com"
	}
	if cfg.WebRisk.KeyPath == "" {
		cfg.WebRisk.KeyPath = "/var/secrets/key.json"
	}
	if cfg.WebRisk.Timeout == "" {
		cfg.WebRisk.Timeout = "20s"
	}
	if len(cfg.WebRisk.Scopes) == 0 {
		cfg.WebRisk.Scopes = []string{"https://www.googleapis.com/auth/cloud-platform"}
	}
	if cfg.Status.Concurrency <= 0 {
		cfg.Status.Concurrency = 4
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "urisubmit"
	}
	if cfg.Metrics.Enabled == nil {
		on := true
		cfg.Metrics.Enabled = &on
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/health"
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = "/ready"
	}
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.HTTPAddr != "" {
		cfg.Server.HTTP.Addr = o.HTTPAddr
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	if o.DataDir != "" {
		cfg.Storage.DataDir = o.DataDir
		cfg.Storage.SQLitePath = filepath.Join(o.DataDir, "operations.db")
		cfg.Storage.LogPath = filepath.Join(o.DataDir, "operations")
	}
	if o.KeyPath != "" {
		cfg.WebRisk.KeyPath = o.KeyPath
	}
	if o.BaseURL != "" {
		cfg.WebRisk.BaseURL = o.BaseURL
	}
	if o.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = o.TracingEndpoint
		cfg.Tracing.Enabled = true
	}
	return nil
}

func validateConfig(cfg *Config) error {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", cfg.Logging.Format)
	}
	for name, v := range map[string]string{
		"server.http.read_timeout":  cfg.Server.HTTP.ReadTimeout,
		"server.http.write_timeout": cfg.Server.HTTP.WriteTimeout,
		"webrisk.timeout":           cfg.WebRisk.Timeout,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("invalid %s %q", name, v)
		}
	}
	if _, err := ParseByteSize(cfg.Server.HTTP.MaxRequestSize); err != nil {
		return fmt.Errorf("invalid server.http.max_request_size: %w", err)
	}
	if cfg.Storage.SQLitePath == "" && cfg.Storage.LogPath == "" {
		return fmt.Errorf("storage needs sqlite_path or log_path")
	}
	if cfg.Storage.Rotation.MaxSizeMB < 0 || cfg.Storage.Rotation.MaxBackups < 0 {
		return fmt.Errorf("storage.rotation values must not be negative")
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.enabled requires tracing.endpoint")
	}
	return nil
}

// Duration parses a validated duration field.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}
