// Package config loads and validates the framework configuration: the host
// settings, the extension load list, and the route configuration tables the
// resolver consumes. Files are YAML with optional includes; environment
// variables override file values.
package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/beginnings-dev/beginnings/internal/validate"
	"github.com/beginnings-dev/beginnings/routing"
)

// Config is the full application configuration.
type Config struct {
	App     AppConfig     `yaml:"app" mapstructure:"app" env:"APP"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server" env:"SERVER"`
	Logger  LoggerConfig  `yaml:"logger" mapstructure:"logger" env:"LOGGER"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics" env:"METRICS"`

	// Extensions lists the extensions to load, in order. Order is load
	// order, which also fixes middleware order within each class.
	Extensions []ExtensionConfig `yaml:"extensions" mapstructure:"extensions"`

	// Global holds configuration defaults applied to every route.
	Global map[string]any `yaml:"global" mapstructure:"global"`

	// Routes maps path patterns to configuration entries. Values stay
	// untyped so one malformed entry cannot fail the whole load; the
	// resolver skips and counts them instead.
	Routes map[string]any `yaml:"routes" mapstructure:"routes"`

	// Includes lists additional YAML files merged beneath this one,
	// resolved relative to the main file.
	Includes []string `yaml:"includes" mapstructure:"includes"`
}

// AppConfig holds application identity and lifecycle settings.
type AppConfig struct {
	Name string `yaml:"name" mapstructure:"name" env:"NAME" validate:"required"`
	// Environment selects the <name>.<environment>.yaml overlay file the
	// loader merges last.
	Environment     string        `yaml:"environment" mapstructure:"environment" env:"ENVIRONMENT"`
	Dev             bool          `yaml:"dev" mapstructure:"dev" env:"DEV"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gte=0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string        `yaml:"address" mapstructure:"address" env:"ADDRESS" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"READ_TIMEOUT" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"WRITE_TIMEOUT" validate:"gte=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"IDLE_TIMEOUT" validate:"gte=0"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level            string   `yaml:"level" mapstructure:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Encoding         string   `yaml:"encoding" mapstructure:"encoding" env:"ENCODING" validate:"oneof=json console"`
	OutputPaths      []string `yaml:"output_paths" mapstructure:"output_paths" env:"OUTPUT_PATHS"`
	ErrorOutputPaths []string `yaml:"error_output_paths" mapstructure:"error_output_paths" env:"ERROR_OUTPUT_PATHS"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled" env:"ENABLED"`
	Path      string `yaml:"path" mapstructure:"path" env:"PATH" validate:"required,startswith=/"`
	Namespace string `yaml:"namespace" mapstructure:"namespace" env:"NAMESPACE" validate:"required"`
}

// ExtensionConfig is one entry in the extension load list.
type ExtensionConfig struct {
	Name   string         `yaml:"name" mapstructure:"name" validate:"required"`
	Config map[string]any `yaml:"config" mapstructure:"config"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:            "beginnings",
			ShutdownTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Logger: LoggerConfig{
			Level:            "info",
			Encoding:         "json",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Path:      "/metrics",
			Namespace: "beginnings",
		},
	}
}

// Validate checks the configuration. Route entries are deliberately not
// validated here; the resolver skips malformed entries at compile time.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Extensions))
	for i, ext := range c.Extensions {
		if strings.TrimSpace(ext.Name) == "" {
			return fmt.Errorf("extensions[%d]: name is required", i)
		}
		if seen[ext.Name] {
			return fmt.Errorf("extensions[%d]: duplicate extension %q", i, ext.Name)
		}
		seen[ext.Name] = true
	}
	return nil
}

// Routing projects the route configuration tables for the resolver.
func (c *Config) Routing() routing.Config {
	return routing.Config{
		Global: c.Global,
		Routes: c.Routes,
	}
}

// BuildLogger constructs a zap logger from the logger section.
func (c *LoggerConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if c.Encoding == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         c.Encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      c.OutputPaths,
		ErrorOutputPaths: c.ErrorOutputPaths,
	}
	return zapCfg.Build()
}
