// Package config loads gamewire configuration from a single YAML file.
//
// The file is named by the --config flag or, failing that, the
// GAMEWIRE_CONFIG environment variable. With neither, Default() is used.
// Values in the file override the defaults field by field; unknown keys are
// an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "GAMEWIRE_CONFIG"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Wire     WireConfig     `yaml:"wire"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
	Limits   LimitsConfig   `yaml:"limits"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	// Listen is the TCP address game clients connect to.
	Listen string `yaml:"listen"`

	// Advertise is the address registered for discovery. Defaults to Listen.
	Advertise string `yaml:"advertise"`

	// Service is the name the server registers under.
	Service string `yaml:"service"`

	// Codec is the preferred body codec: binary, json or cbor.
	Codec string `yaml:"codec"`

	Weight          int           `yaml:"weight"`
	QueueSize       int           `yaml:"queue_size"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type WireConfig struct {
	// ByteOrder of multi-byte scalars in binary bodies: big or little.
	ByteOrder string `yaml:"byte_order"`
}

type RegistryConfig struct {
	// Kind is memory or etcd.
	Kind        string        `yaml:"kind"`
	Endpoints   []string      `yaml:"endpoints"`
	Prefix      string        `yaml:"prefix"`
	TTL         time.Duration `yaml:"ttl"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
	// Format: console or json
	Format string `yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `yaml:"outputs"`

	Rotation    RotationConfig `yaml:"rotation"`
	Development bool           `yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `yaml:"enable"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

type LimitsConfig struct {
	MaxBodyBytes   uint32        `yaml:"max_body_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RatePerSession is requests per second per session; zero disables it.
	RatePerSession float64 `yaml:"rate_per_session"`
	Burst          int     `yaml:"burst"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":7000",
			Service:         "game",
			Codec:           "binary",
			Weight:          10,
			QueueSize:       64,
			IdleTimeout:     90 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Wire: WireConfig{ByteOrder: "big"},
		Registry: RegistryConfig{
			Kind:        "memory",
			Prefix:      "/gamewire/",
			TTL:         10 * time.Second,
			DialTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
		},
		Limits: LimitsConfig{
			MaxBodyBytes:   4 << 20,
			RequestTimeout: 5 * time.Second,
			RatePerSession: 50,
			Burst:          100,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Listen:    ":9100",
			Namespace: "gamewire",
		},
	}
}

// Load reads path, or the file named by GAMEWIRE_CONFIG when path is empty.
// With neither it returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Server.Advertise == "" {
		cfg.Server.Advertise = cfg.Server.Listen
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Listen != "", "server.listen is required")
	check(c.Server.Service != "", "server.service is required")
	check(oneOf(c.Server.Codec, "binary", "json", "cbor"), "server.codec %q: want binary, json or cbor", c.Server.Codec)
	check(c.Server.QueueSize > 0, "server.queue_size must be positive")
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout must be positive")
	check(oneOf(c.Wire.ByteOrder, "big", "little"), "wire.byte_order %q: want big or little", c.Wire.ByteOrder)
	check(oneOf(c.Registry.Kind, "memory", "etcd"), "registry.kind %q: want memory or etcd", c.Registry.Kind)
	if c.Registry.Kind == "etcd" {
		check(len(c.Registry.Endpoints) > 0, "registry.endpoints required for etcd")
		check(strings.HasSuffix(c.Registry.Prefix, "/"), "registry.prefix must end in /")
	}
	check(c.Registry.TTL >= time.Second, "registry.ttl must be at least 1s")
	check(oneOf(strings.ToLower(c.Log.Format), "console", "json"), "log.format %q: want console or json", c.Log.Format)
	check(len(c.Log.Outputs) > 0, "log.outputs must not be empty")
	check(c.Limits.MaxBodyBytes > 0, "limits.max_body_bytes must be positive")
	check(c.Limits.RequestTimeout > 0, "limits.request_timeout must be positive")
	check(c.Limits.RatePerSession >= 0, "limits.rate_per_session must not be negative")
	if c.Limits.RatePerSession > 0 {
		check(c.Limits.Burst > 0, "limits.burst must be positive when rate limiting")
	}
	if c.Metrics.Enabled {
		check(c.Metrics.Listen != "", "metrics.listen is required when metrics are enabled")
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
