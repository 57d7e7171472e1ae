package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g.
// GATEWAY_SERVER__PORT=9000 or GATEWAY_PLUGIN__MAX_BODY_BYTES=1048576.
const EnvPrefix = "GATEWAY_"

type Config struct {
	Server         ServerConfig    `koanf:"server"`
	Log            LogConfig       `koanf:"log"`
	Telemetry      TelemetryConfig `koanf:"telemetry"`
	Metrics        MetricsConfig   `koanf:"metrics"`
	ConsumerHeader string          `koanf:"consumer_header"`
	Routes         []RouteConfig   `koanf:"routes"`
	// Plugin is handed to interceptor.ParseConfig untouched so that type
	// errors are reported against the plugin's own field names.
	Plugin map[string]any `koanf:"plugin"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// RouteConfig maps a path prefix to a named upstream service.
type RouteConfig struct {
	Name       string `koanf:"name"`
	PathPrefix string `koanf:"path_prefix"`
	Upstream   string `koanf:"upstream"`
}

var defaults = map[string]any{
	"server.port":             8080,
	"server.request_timeout":  "30s",
	"server.shutdown_timeout": "30s",
	"log.level":               "info",
	"telemetry.enabled":       false,
	"telemetry.service_name":  "lifecycle-gateway",
	"metrics.enabled":         true,
	"metrics.path":            "/metrics",
	"consumer_header":         "X-Consumer-Username",
}

// Load reads path (a missing file is not an error), applies GATEWAY_
// environment overrides on top, then fills defaults and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config from %s: %w", path, err)
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("set default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Plugin = k.Cut("plugin").Raw()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envValue maps GATEWAY_PLUGIN__LOG_FULL_STRUCTURED=true to
// plugin.log_full_structured with a bool value. Values that parse as
// booleans or integers are typed so they pass the plugin's type checks.
func envValue(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")

	switch strings.ToLower(value) {
	case "true":
		return key, true
	case "false":
		return key, false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return key, n
	}
	return key, value
}

// Validate checks the host-level settings. Plugin settings are validated
// separately by the interceptor.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unsupported level %q", c.Log.Level)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path: must start with /, got %q", c.Metrics.Path)
	}

	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if r.Name == "" {
			return fmt.Errorf("routes[%d].name: required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("routes[%d].name: duplicate route %q", i, r.Name)
		}
		seen[r.Name] = true

		if !strings.HasPrefix(r.PathPrefix, "/") {
			return fmt.Errorf("routes[%d].path_prefix: must start with /, got %q", i, r.PathPrefix)
		}
		u, err := url.Parse(r.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("routes[%d].upstream: must be an absolute URL, got %q", i, r.Upstream)
		}
	}
	return nil
}
