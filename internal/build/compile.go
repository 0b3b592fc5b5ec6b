// Package build drives the bundler for the two ways localgw uses compiled
// handlers: a one-shot build that computes per-function package filters, and
// a watch loop that republishes handlers to the gateway after every rebuild.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/watzon/localgw/internal/bundler"
	"github.com/watzon/localgw/internal/registry"
)

// ExcludeAll is the blanket exclude that opens every per-function filter.
const ExcludeAll = "!**"

// BuildError reports compilation diagnostics.
type BuildError struct {
	Diagnostics []string
}

func (e *BuildError) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return "build failed"
	case 1:
		return "build failed: " + e.Diagnostics[0]
	default:
		return fmt.Sprintf("build failed with %d errors: %s", len(e.Diagnostics), e.Diagnostics[0])
	}
}

// Scope is the filesystem root handed over to packaging. Paths resolve
// against NewRoot until the caller restores OriginalRoot.
type Scope struct {
	OriginalRoot string
	NewRoot      string
}

// Path resolves a relative path against the new root.
func (s Scope) Path(elem ...string) string {
	return filepath.Join(append([]string{s.NewRoot}, elem...)...)
}

// Restore returns the root that was in effect before the build.
func (s Scope) Restore() string {
	return s.OriginalRoot
}

// CompileOptions configures Compile.
type CompileOptions struct {
	// Output receives the rendered stats before a BuildError is returned.
	// Nil discards them.
	Output io.Writer
}

// FunctionPackage is the include filter computed for one function.
type FunctionPackage struct {
	Function string   `yaml:"function"`
	Include  []string `yaml:"include"`
}

// Result is the outcome of a successful one-shot build.
type Result struct {
	Stats    *bundler.Stats
	Scope    Scope
	Packages []FunctionPackage
}

// Compile runs one build. When the service packages functions individually,
// every function's include filter is rewritten to the blanket exclude, the
// files of its chunk and then its previous includes.
func Compile(ctx context.Context, b bundler.Bundler, svc *registry.Service, opts CompileOptions) (*Result, error) {
	stats, err := b.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("running bundler: %w", err)
	}

	if stats.HasErrors() {
		if opts.Output != nil {
			_, _ = io.WriteString(opts.Output, stats.String())
		}
		return nil, &BuildError{Diagnostics: stats.Errors}
	}

	result := &Result{
		Stats: stats,
		Scope: Scope{OriginalRoot: originalRoot(svc), NewRoot: stats.OutputPath},
	}

	if svc.Package.Individually {
		for _, fn := range svc.Functions() {
			include := packageInclude(stats, fn, svc.Custom.IncludeMaps)
			if err := svc.SetPackageInclude(fn.Name, include); err != nil {
				return nil, err
			}
			result.Packages = append(result.Packages, FunctionPackage{Function: fn.Name, Include: include})

			log.Debug().
				Str("function", fn.Name).
				Strs("include", include).
				Msg("Package filter set")
		}
	}

	return result, nil
}

func packageInclude(stats *bundler.Stats, fn *registry.Function, includeMaps bool) []string {
	files := stats.ChunkFiles(fn.Module())
	if files == nil {
		log.Warn().
			Str("function", fn.Name).
			Str("module", fn.Module()).
			Msg("No output chunk for handler module")
	}

	include := make([]string, 0, len(files)+len(fn.Package.Include)+1)
	include = append(include, ExcludeAll)
	for _, f := range files {
		if !includeMaps && strings.HasSuffix(f, ".map") {
			continue
		}
		include = append(include, filepath.ToSlash(f))
	}
	return append(include, fn.Package.Include...)
}

func originalRoot(svc *registry.Service) string {
	if svc.Path != "" {
		return svc.Path
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
