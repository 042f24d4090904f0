package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nfrund/relay/internal/relay"
)

// Config holds all configuration for the relay server.
//
// Values are resolved in this order, later sources winning: built-in defaults,
// the optional YAML file, then environment variables (including a .env file).
type Config struct {
	// ListenAddrs are plain HTTP listen addresses; all serve the same handler.
	ListenAddrs []string `yaml:"listen_addrs" env:"LISTEN_ADDRS" envSeparator:"," validate:"required_without=TLSAddr,dive,required"`

	TLSAddr     string `yaml:"tls_addr" env:"TLS_ADDR"`
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE" validate:"required_with=TLSAddr"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE" validate:"required_with=TLSAddr"`

	// StaticDir is served for non-websocket requests when set.
	StaticDir         string        `yaml:"static_dir" env:"STATIC_DIR" validate:"omitempty,dir"`
	StaticBrowse      bool          `yaml:"static_browse" env:"STATIC_BROWSE"`
	StaticCacheMaxAge time.Duration `yaml:"static_cache_max_age" env:"STATIC_CACHE_MAX_AGE" validate:"gte=0"`

	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" validate:"oneof=text json"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	ReadLimit      int64         `yaml:"read_limit" env:"READ_LIMIT" validate:"gt=0"`
	SendBuffer     int           `yaml:"send_buffer" env:"SEND_BUFFER" validate:"gt=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	OriginPatterns []string      `yaml:"origin_patterns" env:"ORIGIN_PATTERNS" envSeparator:","`

	// GateExemptKinds bypass the topic secret. Clearing it closes the form-data
	// carve-out; this needs the YAML file since an empty env var counts as unset.
	GateExemptKinds   []string `yaml:"gate_exempt_kinds" env:"GATE_EXEMPT_KINDS" envSeparator:","`
	NonCacheableKinds []string `yaml:"non_cacheable_kinds" env:"NON_CACHEABLE_KINDS" envSeparator:","`

	// ConnectRate is websocket upgrades per second per client IP; zero disables limiting.
	ConnectRate  float64 `yaml:"connect_rate" env:"CONNECT_RATE" validate:"gte=0"`
	ConnectBurst int     `yaml:"connect_burst" env:"CONNECT_BURST" validate:"gte=0"`

	TracingEnabled bool   `yaml:"tracing_enabled" env:"TRACING_ENABLED"`
	ServiceName    string `yaml:"service_name" env:"SERVICE_NAME" validate:"required"`
	ZipkinURL      string `yaml:"zipkin_url" env:"ZIPKIN_URL" validate:"required_if=TracingEnabled true,omitempty,url"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		ListenAddrs:       []string{":8000"},
		LogFormat:         "text",
		LogLevel:          "info",
		ReadLimit:         64 << 10,
		SendBuffer:        relay.DefaultSendBuffer,
		WriteTimeout:      10 * time.Second,
		GateExemptKinds:   append([]string(nil), relay.DefaultGateExemptKinds...),
		NonCacheableKinds: append([]string(nil), relay.DefaultNonCacheableKinds...),
		ConnectBurst:      10,
		ServiceName:       "relay",
		ZipkinURL:         "http://localhost:9411/api/v2/spans",
	}
}

// Load resolves the configuration from defaults, the YAML file at path (skipped
// when path is empty), a .env file and the process environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	} else if err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return load(path, env.Options{})
}

func load(path string, opts env.Options) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// No envDefault tags: unset variables leave the file or default value in place.
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// TLSEnabled reports whether a TLS listener is configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSAddr != ""
}
