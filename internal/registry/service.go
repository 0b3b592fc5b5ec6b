package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrServiceNotFound is returned when no service file can be located.
var ErrServiceNotFound = errors.New("service file not found")

// DefaultServiceFiles are searched, in order, when no path is given.
var DefaultServiceFiles = []string{"serverless.yml", "serverless.yaml"}

var knownMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "ANY"}

// New builds a service in memory. Functions keep the given order.
func New(name, stage string, functions ...*Function) *Service {
	return &Service{
		Name:      name,
		Provider:  Provider{Stage: stage},
		functions: functions,
	}
}

// Functions returns all functions in declaration order.
func (s *Service) Functions() []*Function {
	return slices.Clone(s.functions)
}

// FunctionNames returns all function names in declaration order.
func (s *Service) FunctionNames() []string {
	names := make([]string, 0, len(s.functions))
	for _, fn := range s.functions {
		names = append(names, fn.Name)
	}
	return names
}

// Function returns a function by name.
func (s *Service) Function(name string) (*Function, bool) {
	for _, fn := range s.functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// HTTPFunctions returns the functions with at least one HTTP trigger.
func (s *Service) HTTPFunctions() []*Function {
	result := make([]*Function, 0, len(s.functions))
	for _, fn := range s.functions {
		if fn.HasHTTP() {
			result = append(result, fn)
		}
	}
	return result
}

// Stage returns the configured deployment stage.
func (s *Service) Stage() string {
	if s.Provider.Stage != "" {
		return s.Provider.Stage
	}
	return DefaultStage
}

// SetPackageInclude replaces a function's package include filter.
func (s *Service) SetPackageInclude(name string, include []string) error {
	fn, ok := s.Function(name)
	if !ok {
		return fmt.Errorf("function %q not declared", name)
	}
	fn.Package.Include = include
	return nil
}

// Locate returns the service file to load. An explicit path must exist;
// otherwise the default file names are tried in dir.
func Locate(dir, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrServiceNotFound, explicit)
		}
		return filepath.Abs(explicit)
	}

	for _, name := range DefaultServiceFiles {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}
	return "", ErrServiceNotFound
}

// Load reads and parses a service file.
func Load(path string) (*Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading service file: %w", err)
	}

	svc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving service path: %w", err)
	}
	svc.Path = abs

	log.Debug().
		Str("service", svc.Name).
		Str("path", path).
		Int("functions", len(svc.functions)).
		Msg("Service loaded")

	return svc, nil
}

type serviceFile struct {
	Service   yaml.Node     `yaml:"service"`
	Provider  Provider      `yaml:"provider"`
	Package   PackageConfig `yaml:"package"`
	Custom    Custom        `yaml:"custom"`
	Functions yaml.Node     `yaml:"functions"`
}

type functionFile struct {
	Handler    string                 `yaml:"handler"`
	MemorySize int                    `yaml:"memorySize"`
	Timeout    int                    `yaml:"timeout"`
	Events     []map[string]yaml.Node `yaml:"events"`
	Package    PackageConfig          `yaml:"package"`
}

type httpFile struct {
	Method      string    `yaml:"method"`
	Path        string    `yaml:"path"`
	Integration string    `yaml:"integration"`
	CORS        yaml.Node `yaml:"cors"`
}

type corsFile struct {
	Origin  string   `yaml:"origin"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers any      `yaml:"headers"`
}

// Parse parses a service definition. Function order follows the document.
func Parse(data []byte) (*Service, error) {
	var file serviceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing service file: %w", err)
	}

	svc := &Service{
		Provider: file.Provider,
		Package:  file.Package,
		Custom:   file.Custom,
	}

	if size := file.Provider.APIGateway.MinimumCompressionSize; size != nil && (*size < 0 || *size > MaxCompressionSize) {
		return nil, &ConfigError{
			Field:   "provider.apiGateway.minimumCompressionSize",
			Message: fmt.Sprintf("must be between 0 and %d", MaxCompressionSize),
		}
	}

	name, err := parseServiceName(&file.Service)
	if err != nil {
		return nil, err
	}
	svc.Name = name

	if file.Functions.Kind == 0 {
		return svc, nil
	}
	if file.Functions.Kind != yaml.MappingNode {
		return nil, &ConfigError{Field: "functions", Message: "must be a mapping"}
	}

	for i := 0; i+1 < len(file.Functions.Content); i += 2 {
		fnName := file.Functions.Content[i].Value
		fn, err := parseFunction(fnName, file.Functions.Content[i+1])
		if err != nil {
			return nil, err
		}
		svc.functions = append(svc.functions, fn)
	}

	return svc, nil
}

func parseServiceName(node *yaml.Node) (string, error) {
	switch node.Kind {
	case 0:
		return "", nil
	case yaml.ScalarNode:
		return node.Value, nil
	case yaml.MappingNode:
		var named struct {
			Name string `yaml:"name"`
		}
		if err := node.Decode(&named); err != nil {
			return "", fmt.Errorf("parsing service name: %w", err)
		}
		return named.Name, nil
	default:
		return "", &ConfigError{Field: "service", Message: "must be a string or a mapping"}
	}
}

func parseFunction(name string, node *yaml.Node) (*Function, error) {
	var file functionFile
	if err := node.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing function %q: %w", name, err)
	}

	if file.Handler == "" {
		return nil, &ConfigError{Function: name, Field: "handler", Message: "is required"}
	}
	if _, export := SplitHandler(file.Handler); export == "" {
		return nil, &ConfigError{Function: name, Field: "handler", Message: "must have the form <module>.<export>"}
	}

	fn := &Function{
		Name:       name,
		Handler:    file.Handler,
		MemorySize: file.MemorySize,
		Timeout:    file.Timeout,
		Package:    file.Package,
	}

	for i, event := range file.Events {
		httpNode, ok := event["http"]
		if !ok {
			continue
		}
		trigger, err := parseHTTP(name, &httpNode)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		fn.Events = append(fn.Events, trigger)
	}

	return fn, nil
}

func parseHTTP(fnName string, node *yaml.Node) (Trigger, error) {
	var trigger Trigger

	switch node.Kind {
	case yaml.ScalarNode:
		// Shorthand: "GET users/{id}"
		parts := strings.Fields(node.Value)
		if len(parts) != 2 {
			return trigger, &ConfigError{Function: fnName, Field: "http", Message: fmt.Sprintf("shorthand %q must be \"<method> <path>\"", node.Value)}
		}
		trigger.Method, trigger.Path = parts[0], parts[1]
	case yaml.MappingNode:
		var file httpFile
		if err := node.Decode(&file); err != nil {
			return trigger, fmt.Errorf("parsing http event: %w", err)
		}
		cors, err := parseCORS(fnName, &file.CORS)
		if err != nil {
			return trigger, err
		}
		trigger = Trigger{
			Method:      file.Method,
			Path:        file.Path,
			Integration: file.Integration,
			CORS:        cors,
		}
	default:
		return trigger, &ConfigError{Function: fnName, Field: "http", Message: "must be a string or a mapping"}
	}

	if !slices.Contains(knownMethods, strings.ToUpper(trigger.Method)) {
		return trigger, &ConfigError{Function: fnName, Field: "http.method", Message: fmt.Sprintf("unsupported method %q", trigger.Method)}
	}

	return trigger, nil
}

func parseCORS(fnName string, node *yaml.Node) (*CORS, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return nil, &ConfigError{Function: fnName, Field: "http.cors", Message: "must be a boolean or a mapping"}
		}
		if !enabled {
			return nil, nil
		}
		return &CORS{}, nil
	case yaml.MappingNode:
		var file corsFile
		if err := node.Decode(&file); err != nil {
			return nil, fmt.Errorf("parsing cors: %w", err)
		}
		origins := file.Origins
		if file.Origin != "" {
			origins = append([]string{file.Origin}, origins...)
		}
		return &CORS{
			Custom:  true,
			Origins: origins,
			Methods: file.Methods,
			Headers: file.Headers,
		}, nil
	default:
		return nil, &ConfigError{Function: fnName, Field: "http.cors", Message: "must be a boolean or a mapping"}
	}
}
