package gateway

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/watzon/localgw/internal/lambda"
	"github.com/watzon/localgw/internal/registry"
)

// ErrHandlerCount is returned by Publish when the handler set does not cover
// every route entry.
var ErrHandlerCount = errors.New("handler table does not match route table")

// RouteOptions configures route construction.
type RouteOptions struct {
	// StagePrefix prepends /<stage> to every route.
	StagePrefix bool
	// Stage overrides the provider stage.
	Stage string
}

// RouteEntry is one (function, trigger) pair. Entries are immutable; the
// handler an entry invokes lives in the published HandlerTable at index ID.
type RouteEntry struct {
	ID       int
	Function *registry.Function
	Trigger  registry.Trigger
	Module   string
	Export   string
	// Method is the uppercased trigger method; ANY matches every method.
	Method string
	// Path is the normalized route path.
	Path string
	// Resource is the declared path template.
	Resource string
	CORS     *CORSPolicy
}

// FunctionName returns the name of the entry's function.
func (e *RouteEntry) FunctionName() string {
	return e.Function.Name
}

// Integration returns "proxy" or "lambda".
func (e *RouteEntry) Integration() string {
	if e.Trigger.IsProxy() {
		return "proxy"
	}
	return registry.IntegrationLambda
}

// RouteInfo describes a route for listings.
type RouteInfo struct {
	Function    string      `json:"function"`
	Handler     string      `json:"handler"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	Resource    string      `json:"resource"`
	Integration string      `json:"integration"`
	CORS        *CORSPolicy `json:"cors,omitempty"`
}

// Info describes the entry.
func (e *RouteEntry) Info() RouteInfo {
	return RouteInfo{
		Function:    e.Function.Name,
		Handler:     e.Function.Handler,
		Method:      e.Method,
		Path:        e.Path,
		Resource:    e.Resource,
		Integration: e.Integration(),
		CORS:        e.CORS,
	}
}

// BuildRoutes derives the route entries of a service. Functions without HTTP
// triggers are skipped. The entry order is the registration order.
func BuildRoutes(svc *registry.Service, opts RouteOptions) ([]*RouteEntry, error) {
	stage := ""
	if opts.StagePrefix {
		stage = resolveStage(svc, opts)
	}

	var entries []*RouteEntry
	for _, fn := range svc.HTTPFunctions() {
		module, export := registry.SplitHandler(fn.Handler)
		for _, trigger := range fn.Events {
			cors, err := ResolveCORS(fn.Name, trigger)
			if err != nil {
				return nil, err
			}

			path := NormalizePath(stage, trigger.Path)
			if _, err := compilePattern(path); err != nil {
				return nil, &registry.ConfigError{Function: fn.Name, Field: "http.path", Message: err.Error()}
			}

			entries = append(entries, &RouteEntry{
				ID:       len(entries),
				Function: fn,
				Trigger:  trigger,
				Module:   module,
				Export:   export,
				Method:   strings.ToUpper(trigger.Method),
				Path:     path,
				Resource: trigger.Path,
				CORS:     cors,
			})
		}
	}
	return entries, nil
}

func resolveStage(svc *registry.Service, opts RouteOptions) string {
	if opts.Stage != "" {
		return opts.Stage
	}
	return svc.Stage()
}

// HandlerTable is one published set of handlers, indexed by RouteEntry.ID.
// A table is never modified after it is published.
type HandlerTable struct {
	Cycle    uint64
	handlers []lambda.Handler
}

// Handler returns the handler of an entry.
func (t *HandlerTable) Handler(e *RouteEntry) lambda.Handler {
	return t.handlers[e.ID]
}

// RouteTable holds the route entries of a service, built once, and the
// currently published handler table.
type RouteTable struct {
	service *registry.Service
	stage   string
	entries []*RouteEntry

	mu      sync.Mutex
	cycle   uint64
	current atomic.Pointer[HandlerTable]
}

// NewRouteTable builds the route table of a service. No handler table is
// published yet.
func NewRouteTable(svc *registry.Service, opts RouteOptions) (*RouteTable, error) {
	entries, err := BuildRoutes(svc, opts)
	if err != nil {
		return nil, err
	}
	return &RouteTable{
		service: svc,
		stage:   resolveStage(svc, opts),
		entries: entries,
	}, nil
}

// Service returns the service the table was built from.
func (t *RouteTable) Service() *registry.Service {
	return t.service
}

// Stage returns the resolved deployment stage.
func (t *RouteTable) Stage() string {
	return t.stage
}

// Entries returns the route entries in registration order.
func (t *RouteTable) Entries() []*RouteEntry {
	return t.entries
}

// Describe lists the routes in registration order.
func (t *RouteTable) Describe() []RouteInfo {
	infos := make([]RouteInfo, 0, len(t.entries))
	for _, e := range t.entries {
		infos = append(infos, e.Info())
	}
	return infos
}

// Publish installs a complete handler set with a single atomic store and
// returns its cycle number. handlers[i] serves the entry with ID i.
func (t *RouteTable) Publish(handlers []lambda.Handler) (uint64, error) {
	if len(handlers) != len(t.entries) {
		return 0, fmt.Errorf("%w: %d handlers for %d routes", ErrHandlerCount, len(handlers), len(t.entries))
	}
	for i, h := range handlers {
		if h == nil {
			return 0, fmt.Errorf("%w: no handler for %s %s", ErrHandlerCount, t.entries[i].Method, t.entries[i].Path)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.cycle++
	table := &HandlerTable{Cycle: t.cycle, handlers: append([]lambda.Handler(nil), handlers...)}
	t.current.Store(table)
	return table.Cycle, nil
}

// Current returns the published handler table, or nil before the first
// publish.
func (t *RouteTable) Current() *HandlerTable {
	return t.current.Load()
}

// Ready reports whether a handler table has been published.
func (t *RouteTable) Ready() bool {
	return t.current.Load() != nil
}

// Cycle returns the cycle number of the published table, 0 before the first
// publish.
func (t *RouteTable) Cycle() uint64 {
	if cur := t.current.Load(); cur != nil {
		return cur.Cycle
	}
	return 0
}
