// Package bundler defines the contract between localgw and the external build
// tool that compiles handler code, and ships a command-driven implementation.
package bundler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Chunk is one named output unit and the files it was written to. File paths
// are relative to Stats.OutputPath.
type Chunk struct {
	Name  string
	Files []string
}

// Stats describes one completed build.
type Stats struct {
	// OutputPath is the absolute output directory.
	OutputPath string
	// Chunks lists named output units in bundler order.
	Chunks []Chunk
	// Errors holds compilation diagnostics. A build with errors produced no
	// usable output.
	Errors []string
	// Warnings holds non-fatal diagnostics.
	Warnings []string
	// Output is the raw tool output.
	Output string
	// StartedAt and Duration time the build.
	StartedAt time.Time
	Duration  time.Duration
}

// RebuildFunc is called once per completed watch cycle. err is a hard bundler
// failure; compilation errors are reported through stats. Returning an error
// stops the watch.
type RebuildFunc func(err error, stats *Stats) error

// Bundler compiles handler code.
type Bundler interface {
	// Build runs one build to completion.
	Build(ctx context.Context) (*Stats, error)
	// Watch builds once, then rebuilds on every source change, calling
	// onRebuild after each build. Callbacks are never concurrent. Watch
	// blocks until ctx is done (returning nil) or onRebuild returns an error
	// (returning that error).
	Watch(ctx context.Context, onRebuild RebuildFunc) error
}

// HasErrors reports whether the build produced compilation errors.
func (s *Stats) HasErrors() bool {
	return len(s.Errors) > 0
}

// ChunkFiles returns the files of the first chunk whose name contains
// modulePath, or nil if none does. Exact name matches win.
func (s *Stats) ChunkFiles(modulePath string) []string {
	for _, c := range s.Chunks {
		if c.Name == modulePath {
			return c.Files
		}
	}
	for _, c := range s.Chunks {
		if strings.Contains(c.Name, modulePath) {
			return c.Files
		}
	}
	return nil
}

// Abs resolves a chunk file against the output directory.
func (s *Stats) Abs(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(s.OutputPath, file)
}

// String renders the stats for the console.
func (s *Stats) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Output: %s\n", s.OutputPath)
	fmt.Fprintf(&sb, "Time: %dms\n", s.Duration.Milliseconds())

	for _, c := range s.Chunks {
		for _, f := range c.Files {
			fmt.Fprintf(&sb, "  %-40s [%s]\n", f, c.Name)
		}
	}

	for _, w := range s.Warnings {
		fmt.Fprintf(&sb, "WARNING %s\n", w)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&sb, "ERROR %s\n", e)
	}

	return sb.String()
}
