package interceptor

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Configuration keys as they appear in the declarative plugin config.
const (
	KeyLoggingEnabled         = "logging_enabled"
	KeyLogFullStructured      = "log_full_structured"
	KeySecurityHeadersEnabled = "security_headers_enabled"
	KeyCustomHeaderName       = "custom_header_name"
	KeyCustomHeaderValue      = "custom_header_value"
	KeyMinBodyBytes           = "min_body_bytes"
	KeyMaxBodyBytes           = "max_body_bytes"
)

// Config is the validated plugin configuration. It is immutable once
// returned by ParseConfig.
type Config struct {
	LoggingEnabled         bool
	LogFullStructured      bool
	SecurityHeadersEnabled bool
	CustomHeaderName       string
	CustomHeaderValue      string
	MinBodyBytes           int64
	MaxBodyBytes           int64 // 0 means unbounded
}

// DefaultConfig returns the configuration used for every omitted field.
func DefaultConfig() Config {
	return Config{
		LoggingEnabled:         true,
		LogFullStructured:      false,
		SecurityHeadersEnabled: true,
		CustomHeaderName:       "X-Gateway-Plugin",
		CustomHeaderValue:      "lifecycle-interceptor",
	}
}

// customHeader reports the custom header pair, if both halves are set.
func (c Config) customHeader() (string, string, bool) {
	if c.CustomHeaderName == "" || c.CustomHeaderValue == "" {
		return "", "", false
	}
	return c.CustomHeaderName, c.CustomHeaderValue, true
}

// bodyOutOfRange reports whether a known body size falls outside the
// configured bounds.
func (c Config) bodyOutOfRange(size int64) bool {
	if size < 0 {
		return false
	}
	if c.MinBodyBytes > 0 && size < c.MinBodyBytes {
		return true
	}
	return c.MaxBodyBytes > 0 && size > c.MaxBodyBytes
}

// FieldError is returned when the plugin configuration is rejected.
type FieldError struct {
	Fields []string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid plugin config: %s: %s", strings.Join(e.Fields, ", "), e.Reason)
}

// ParseConfig applies defaults to raw, type-checks every field and enforces
// min_body_bytes <= max_body_bytes when both are non-zero. A nil map yields
// the defaults.
func ParseConfig(raw map[string]any) (Config, error) {
	cfg := DefaultConfig()

	known := map[string]bool{
		KeyLoggingEnabled: true, KeyLogFullStructured: true, KeySecurityHeadersEnabled: true,
		KeyCustomHeaderName: true, KeyCustomHeaderValue: true,
		KeyMinBodyBytes: true, KeyMaxBodyBytes: true,
	}
	var unknownKeys []string
	for k := range raw {
		if !known[k] {
			unknownKeys = append(unknownKeys, k)
		}
	}
	if len(unknownKeys) > 0 {
		sort.Strings(unknownKeys)
		return Config{}, &FieldError{Fields: unknownKeys, Reason: "unknown field"}
	}

	var err error
	if cfg.LoggingEnabled, err = boolField(raw, KeyLoggingEnabled, cfg.LoggingEnabled); err != nil {
		return Config{}, err
	}
	if cfg.LogFullStructured, err = boolField(raw, KeyLogFullStructured, cfg.LogFullStructured); err != nil {
		return Config{}, err
	}
	if cfg.SecurityHeadersEnabled, err = boolField(raw, KeySecurityHeadersEnabled, cfg.SecurityHeadersEnabled); err != nil {
		return Config{}, err
	}
	if cfg.CustomHeaderName, err = stringField(raw, KeyCustomHeaderName, cfg.CustomHeaderName); err != nil {
		return Config{}, err
	}
	if cfg.CustomHeaderValue, err = stringField(raw, KeyCustomHeaderValue, cfg.CustomHeaderValue); err != nil {
		return Config{}, err
	}
	if cfg.MinBodyBytes, err = sizeField(raw, KeyMinBodyBytes, cfg.MinBodyBytes); err != nil {
		return Config{}, err
	}
	if cfg.MaxBodyBytes, err = sizeField(raw, KeyMaxBodyBytes, cfg.MaxBodyBytes); err != nil {
		return Config{}, err
	}

	if cfg.MinBodyBytes > 0 && cfg.MaxBodyBytes > 0 && cfg.MinBodyBytes > cfg.MaxBodyBytes {
		return Config{}, &FieldError{
			Fields: []string{KeyMinBodyBytes, KeyMaxBodyBytes},
			Reason: fmt.Sprintf("%s (%d) must not exceed %s (%d)",
				KeyMinBodyBytes, cfg.MinBodyBytes, KeyMaxBodyBytes, cfg.MaxBodyBytes),
		}
	}

	return cfg, nil
}

func boolField(raw map[string]any, key string, def bool) (bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &FieldError{Fields: []string{key}, Reason: fmt.Sprintf("expected boolean, got %T", v)}
	}
	return b, nil
}

func stringField(raw map[string]any, key string, def string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	// Scalars are accepted as their text form: environment overrides
	// arrive typed, so a header value of 2024 or true is an int or bool.
	switch s := v.(type) {
	case string:
		return s, nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(s), nil
	}
	return "", &FieldError{Fields: []string{key}, Reason: fmt.Sprintf("expected string, got %T", v)}
}

func sizeField(raw map[string]any, key string, def int64) (int64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, &FieldError{Fields: []string{key}, Reason: fmt.Sprintf("expected integer, got %T", v)}
	}
	if n < 0 {
		return 0, &FieldError{Fields: []string{key}, Reason: fmt.Sprintf("must be >= 0, got %d", n)}
	}
	return n, nil
}

// toInt64 accepts every Go integer kind plus integral floats, which is how
// JSON decoders hand numbers over.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	default:
		return 0, false
	}
}

func uintToInt64(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
