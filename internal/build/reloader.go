package build

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/watzon/localgw/internal/bundler"
	"github.com/watzon/localgw/internal/gateway"
	"github.com/watzon/localgw/internal/lambda"
	"github.com/watzon/localgw/internal/metrics"
)

// ErrModuleNotFound is returned when no output chunk holds a handler module.
var ErrModuleNotFound = errors.New("module not found in build output")

// ArtifactMap maps a module name to the absolute paths of its output files.
// It is rebuilt from scratch for every build.
type ArtifactMap map[string][]string

// NewArtifactMap resolves the given modules against a build's chunks.
// Modules without a chunk are left out.
func NewArtifactMap(stats *bundler.Stats, modules []string) ArtifactMap {
	m := make(ArtifactMap, len(modules))
	for _, module := range modules {
		files := stats.ChunkFiles(module)
		if files == nil {
			continue
		}
		abs := make([]string, len(files))
		for i, f := range files {
			abs[i] = stats.Abs(f)
		}
		m[module] = abs
	}
	return m
}

// Files returns the files of a module.
func (m ArtifactMap) Files(module string) ([]string, error) {
	files, ok := m[module]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, module)
	}
	return files, nil
}

// Reloader republishes handlers to a route table after every rebuild.
// Rebuilds are processed one at a time.
type Reloader struct {
	table  *gateway.RouteTable
	loader lambda.Loader

	mu sync.Mutex
	// live holds the modules of the published table; retired holds the ones
	// it replaced, which in-flight requests may still be using.
	live    []lambda.Module
	retired []lambda.Module
}

func NewReloader(table *gateway.RouteTable, loader lambda.Loader) *Reloader {
	return &Reloader{table: table, loader: loader}
}

// Callback adapts OnRebuild to the bundler's watch callback.
func (r *Reloader) Callback(ctx context.Context) bundler.RebuildFunc {
	return func(err error, stats *bundler.Stats) error {
		return r.OnRebuild(ctx, err, stats)
	}
}

// OnRebuild handles one completed build. A hard bundler error or a handler
// that cannot be resolved is returned. A build with compilation errors keeps
// the previously published handlers.
func (r *Reloader) OnRebuild(ctx context.Context, buildErr error, stats *bundler.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buildErr != nil {
		metrics.RecordRebuild(metrics.RebuildHardError, 0)
		return fmt.Errorf("bundler failed: %w", buildErr)
	}

	if stats.HasErrors() {
		metrics.RecordRebuild(metrics.RebuildFailed, stats.Duration)
		log.Error().
			Strs("errors", stats.Errors).
			Bool("serving_previous", r.table.Ready()).
			Msg("Build failed, keeping previous handlers")
		return nil
	}

	entries := r.table.Entries()
	modules := make([]string, 0, len(entries))
	for _, e := range entries {
		modules = append(modules, e.Module)
	}
	artifacts := NewArtifactMap(stats, modules)

	// Cycle-local cache: each module loads once no matter how many routes use it.
	loaded := make(map[string]lambda.Module)
	var order []lambda.Module
	handlers := make([]lambda.Handler, len(entries))

	for _, e := range entries {
		mod, ok := loaded[e.Module]
		if !ok {
			files, err := artifacts.Files(e.Module)
			if err != nil {
				closeModules(order)
				return fmt.Errorf("function %s: %w", e.FunctionName(), err)
			}
			mod, err = r.loader.Load(ctx, e.Module, files)
			if err != nil {
				closeModules(order)
				return fmt.Errorf("function %s: %w", e.FunctionName(), err)
			}
			loaded[e.Module] = mod
			order = append(order, mod)
		}

		h, err := mod.Lookup(e.Export)
		if err != nil {
			closeModules(order)
			return fmt.Errorf("function %s: %w", e.FunctionName(), err)
		}
		handlers[e.ID] = h
	}

	cycle, err := r.table.Publish(handlers)
	if err != nil {
		closeModules(order)
		return err
	}

	closeModules(r.retired)
	r.retired = r.live
	r.live = order

	metrics.RecordRebuild(metrics.RebuildPublished, stats.Duration)
	metrics.SetPublished(len(order))

	log.Info().
		Uint64("cycle", cycle).
		Int("modules", len(order)).
		Int("routes", len(entries)).
		Dur("build_time", stats.Duration).
		Msg("Handlers reloaded")

	return nil
}

// Close releases every module the reloader still holds.
func (r *Reloader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	closeModules(r.retired)
	closeModules(r.live)
	r.retired, r.live = nil, nil
	return nil
}

func closeModules(modules []lambda.Module) {
	for _, m := range modules {
		if err := m.Close(); err != nil {
			log.Warn().Err(err).Str("module", m.Name()).Msg("Failed to release module")
		}
	}
}
