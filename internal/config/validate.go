package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateService(&cfg.Service)...)
	errs = append(errs, validateBuild(&cfg.Build)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.MaxBodySize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be positive",
		})
	}

	for field, d := range map[string]time.Duration{
		"server.read_timeout":  cfg.ReadTimeout,
		"server.write_timeout": cfg.WriteTimeout,
		"server.idle_timeout":  cfg.IdleTimeout,
	} {
		if d < 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "must be non-negative",
			})
		}
	}

	if strings.Contains(cfg.Stage, "/") {
		errs = append(errs, ValidationError{
			Field:   "server.stage",
			Message: "must not contain '/'",
		})
	}

	return errs
}

func validateService(cfg *ServiceConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.DefaultTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "service.default_timeout",
			Message: "must be positive",
		})
	}

	if cfg.DefaultMemorySize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "service.default_memory_size",
			Message: "must be positive",
		})
	}

	return errs
}

func validateBuild(cfg *BuildConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Output == "" {
		errs = append(errs, ValidationError{
			Field:   "build.output",
			Message: "is required",
		})
	} else if filepath.IsAbs(cfg.Output) {
		errs = append(errs, ValidationError{
			Field:   "build.output",
			Message: "must be relative to the service directory",
		})
	}

	if cfg.Debounce < 0 {
		errs = append(errs, ValidationError{
			Field:   "build.debounce",
			Message: "must be non-negative",
		})
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "build.timeout",
			Message: "must be positive",
		})
	}

	if cfg.Command == "" && len(cfg.Args) > 0 {
		errs = append(errs, ValidationError{
			Field:   "build.args",
			Message: "set without build.command",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	return errs
}
