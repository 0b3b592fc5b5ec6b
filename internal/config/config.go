// Package config provides configuration management for localgw.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure for localgw.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Service ServiceConfig `mapstructure:"service"`
	Build   BuildConfig   `mapstructure:"build"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Prefix every route with /<stage>
	StagePrefix bool `mapstructure:"stage_prefix"`

	// Stage overrides the provider stage from the service file
	Stage string `mapstructure:"stage"`

	// Maximum parsed request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`

	// Request timeouts. Zero disables the timeout; handlers are not cancelled.
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Serve /__localgw/metrics
	Metrics bool `mapstructure:"metrics"`
}

// ServiceConfig locates the service definition.
type ServiceConfig struct {
	// Path to the service file (default: serverless.yml in the working directory)
	Path string `mapstructure:"path"`

	// Function timeout used for the invocation context when the service file sets none
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`

	// Memory size reported in the invocation context when the service file sets none
	DefaultMemorySize int `mapstructure:"default_memory_size"`
}

// BuildConfig describes the external bundler command.
type BuildConfig struct {
	// Command to run, e.g. "esbuild" or "go"
	Command string `mapstructure:"command"`

	// Arguments passed to the command
	Args []string `mapstructure:"args"`

	// Output directory, relative to the service directory
	Output string `mapstructure:"output"`

	// Glob patterns (relative to the service directory) that trigger a rebuild
	Watch []string `mapstructure:"watch"`

	// Quiet period before a change triggers a rebuild
	Debounce time.Duration `mapstructure:"debounce"`

	// Maximum duration of one build
	Timeout time.Duration `mapstructure:"timeout"`

	// Extra environment variables for the build command
	Env map[string]string `mapstructure:"env"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// ResolveStage returns the configured stage override or fallback.
func (s *ServerConfig) ResolveStage(fallback string) string {
	if s.Stage != "" {
		return s.Stage
	}
	return fallback
}
