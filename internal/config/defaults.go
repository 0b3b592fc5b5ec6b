package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost        = "localhost"
	DefaultPort        = 8000
	DefaultIdleTimeout = 120 * time.Second
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// Service defaults.
	DefaultFunctionTimeout = 6 * time.Second
	DefaultMemorySize      = 1024 // MB

	// Build defaults.
	DefaultBuildOutput   = ".build"
	DefaultBuildDebounce = 100 * time.Millisecond
	DefaultBuildTimeout  = 5 * time.Minute

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        DefaultHost,
			Port:        DefaultPort,
			IdleTimeout: DefaultIdleTimeout,
			MaxBodySize: DefaultMaxBodySize,
			Metrics:     true,
		},
		Service: ServiceConfig{
			DefaultTimeout:    DefaultFunctionTimeout,
			DefaultMemorySize: DefaultMemorySize,
		},
		Build: BuildConfig{
			Output:   DefaultBuildOutput,
			Debounce: DefaultBuildDebounce,
			Timeout:  DefaultBuildTimeout,
			Env:      map[string]string{},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
