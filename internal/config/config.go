// Package config holds the driverhub server configuration. Configuration is
// loaded from a TOML file at startup, validated, and exposed through a
// package-level accessor.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// ConfigFormatVersion is the current version of the configuration file format.
const ConfigFormatVersion = "0.1.0"

// DownstreamConfig describes the downstream automation server commands may be
// proxied to. An empty URL means the server executes everything locally.
type DownstreamConfig struct {
	URL     string `toml:"url" validate:"omitempty,url"`
	Dialect string `toml:"dialect" validate:"omitempty,oneof=W3C JSONWP"`
}

// ConfigParam holds all configuration parameters for the driverhub server.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"`

	ServerHostName string `toml:"server_hostname"`
	ServerPort     string `toml:"server_port" validate:"required"`
	HandleCORS     bool   `toml:"handle_cors"`

	// BasePath is the URL prefix the protocol routes are mounted under,
	// e.g. "/wd/hub". Empty mounts at the root.
	BasePath string `toml:"base_path"`

	// NewCommandTimeoutSecs is the default per-session inactivity window.
	// Zero disables the watchdog. Can be overridden per session via the
	// newCommandTimeout capability.
	NewCommandTimeoutSecs float64 `toml:"new_command_timeout_secs" validate:"gte=0"`

	// IdempotencyHeader is the request header carrying the session-creation
	// idempotency key.
	IdempotencyHeader string `toml:"idempotency_header"`

	// RequestTimeoutSecs bounds a single command round trip, proxied calls
	// included. Zero applies the default.
	RequestTimeoutSecs float64 `toml:"request_timeout_secs" validate:"gte=0"`

	Downstream DownstreamConfig `toml:"downstream"`
}

var cfg *ConfigParam

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// NewCommandTimeout returns the configured watchdog window as a duration.
// Zero means disabled.
func (c *ConfigParam) NewCommandTimeout() time.Duration {
	return time.Duration(c.NewCommandTimeoutSecs * float64(time.Second))
}

// RequestTimeout returns the per-request deadline.
func (c *ConfigParam) RequestTimeout() time.Duration {
	if c.RequestTimeoutSecs == 0 {
		return 4 * time.Minute
	}
	return time.Duration(c.RequestTimeoutSecs * float64(time.Second))
}

// Default returns the built-in configuration used when no config file is
// supplied.
func Default() *ConfigParam {
	return &ConfigParam{
		FormatVersion:         ConfigFormatVersion,
		ServerHostName:        "127.0.0.1",
		ServerPort:            "4723",
		NewCommandTimeoutSecs: 60,
		IdempotencyHeader:     "X-Idempotency-Key",
	}
}

// ValidateConfig checks that all required configuration values are present
// and consistent, and fills in defaults for optional ones.
func ValidateConfig(c *ConfigParam) error {
	if c.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", c.FormatVersion)
	}
	if c.ServerHostName == "" {
		c.ServerHostName = "127.0.0.1"
	}
	if c.IdempotencyHeader == "" {
		c.IdempotencyHeader = "X-Idempotency-Key"
	}
	if c.Downstream.URL != "" && c.Downstream.Dialect == "" {
		return fmt.Errorf("downstream.dialect is required when downstream.url is set")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from a TOML file and installs it as the
// active configuration.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	loaded := &ConfigParam{}
	if _, err := toml.Decode(string(content), loaded); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if err := ValidateConfig(loaded); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// SetConfig installs a configuration directly; used by tests and by the CLI
// when running with defaults.
func SetConfig(c *ConfigParam) error {
	if err := ValidateConfig(c); err != nil {
		return err
	}
	cfg = c
	return nil
}
