// Package registry holds the declarative service definition: functions, their
// handler references, HTTP triggers and packaging settings.
package registry

import (
	"fmt"
	"strings"
)

// DefaultStage is used when neither the command line nor the provider names one.
const DefaultStage = "dev"

// IntegrationLambda selects raw (non-proxy) integration for a trigger.
const IntegrationLambda = "lambda"

// MethodAny is the wildcard trigger method.
const MethodAny = "any"

// Service is a loaded service definition.
type Service struct {
	// Name is the service name.
	Name string
	// Path is the directory containing the service file. Build commands run
	// from here.
	Path string
	// Provider holds provider-wide settings.
	Provider Provider
	// Package holds service-wide packaging settings.
	Package PackageConfig
	// Custom holds plugin settings from the custom section.
	Custom Custom

	functions []*Function
}

// Provider holds provider-wide settings.
type Provider struct {
	Name       string     `yaml:"name"`
	Runtime    string     `yaml:"runtime"`
	Stage      string     `yaml:"stage"`
	MemorySize int        `yaml:"memorySize"`
	Timeout    int        `yaml:"timeout"`
	APIGateway APIGateway `yaml:"apiGateway"`
}

// MaxCompressionSize is the largest accepted minimumCompressionSize.
const MaxCompressionSize = 10 << 20

// APIGateway holds gateway-wide settings.
type APIGateway struct {
	// MinimumCompressionSize enables gzip for responses of at least this many
	// bytes. Nil disables compression.
	MinimumCompressionSize *int `yaml:"minimumCompressionSize"`
}

// PackageConfig is a packaging filter.
type PackageConfig struct {
	Individually bool     `yaml:"individually,omitempty"`
	Include      []string `yaml:"include,omitempty"`
	Exclude      []string `yaml:"exclude,omitempty"`
}

// Custom holds the settings read from the custom section.
type Custom struct {
	// IncludeMaps keeps source maps in per-function packages.
	IncludeMaps bool `yaml:"includeMaps"`
}

// Function is one declared function.
type Function struct {
	Name       string
	Handler    string
	MemorySize int
	Timeout    int
	// Events holds the function's HTTP triggers in declaration order.
	Events  []Trigger
	Package PackageConfig
}

// Trigger binds an HTTP method and path template to a function.
type Trigger struct {
	Method      string
	Path        string
	Integration string
	// CORS is nil when the trigger does not declare CORS.
	CORS *CORS
}

// CORS is a trigger's CORS declaration as written. Policy resolution happens
// when routes are registered.
type CORS struct {
	// Custom is true when CORS was declared as an object rather than `true`.
	Custom  bool
	Origins []string
	Methods []string
	// Headers is the raw declared value; it must be a list of strings.
	Headers any
}

// IsProxy reports whether the trigger uses proxy integration.
func (t Trigger) IsProxy() bool {
	return t.Integration != IntegrationLambda
}

// IsAnyMethod reports whether the trigger matches every method.
func (t Trigger) IsAnyMethod() bool {
	return strings.EqualFold(t.Method, MethodAny)
}

// Module returns the logical module name of the function's handler.
func (f *Function) Module() string {
	module, _ := SplitHandler(f.Handler)
	return module
}

// Export returns the export name of the function's handler.
func (f *Function) Export() string {
	_, export := SplitHandler(f.Handler)
	return export
}

// HasHTTP reports whether the function declares at least one HTTP trigger.
func (f *Function) HasHTTP() bool {
	return len(f.Events) > 0
}

// SplitHandler splits a `<module>.<export>` reference at its last dot.
func SplitHandler(ref string) (module, export string) {
	idx := strings.LastIndex(ref, ".")
	if idx < 0 {
		return strings.TrimPrefix(ref, "./"), ""
	}
	return strings.TrimPrefix(ref[:idx], "./"), ref[idx+1:]
}

// ConfigError reports an invalid declaration in the service definition.
type ConfigError struct {
	Function string
	Field    string
	Message  string
}

func (e *ConfigError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("function %q: %s: %s", e.Function, e.Field, e.Message)
}
