package bundler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultDebounceDuration = 100 * time.Millisecond
	defaultBuildTimeout     = 5 * time.Minute
)

// Config configures a CommandBundler.
type Config struct {
	// Dir is the directory the command runs in and patterns are relative to.
	Dir string
	// Command and Args run the build. An empty command skips the build step
	// and only scans Output, for tools that manage their own watch loop.
	Command string
	Args    []string
	// Env adds variables to the command's environment.
	Env map[string]string
	// Output is the output directory, relative to Dir.
	Output string
	// Watch holds glob patterns relative to Dir. Empty watches all of Dir.
	Watch []string
	// Debounce is the quiet period before a change triggers a rebuild.
	Debounce time.Duration
	// Timeout bounds a single build.
	Timeout time.Duration
}

// CommandBundler runs an external build command and derives chunks from the
// files it writes.
type CommandBundler struct {
	cfg Config
}

// NewCommandBundler creates a bundler for the given configuration.
func NewCommandBundler(cfg Config) *CommandBundler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounceDuration
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultBuildTimeout
	}
	return &CommandBundler{cfg: cfg}
}

// OutputPath returns the absolute output directory.
func (b *CommandBundler) OutputPath() string {
	if filepath.IsAbs(b.cfg.Output) {
		return b.cfg.Output
	}
	return filepath.Join(b.cfg.Dir, b.cfg.Output)
}

// Build runs the command once. A command that cannot be started is a hard
// error; a non-zero exit is reported as compilation errors in the stats.
func (b *CommandBundler) Build(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		OutputPath: b.OutputPath(),
		StartedAt:  time.Now(),
	}
	defer func() { stats.Duration = time.Since(stats.StartedAt) }()

	if b.cfg.Command != "" {
		buildCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()

		log.Debug().
			Str("command", b.cfg.Command).
			Strs("args", b.cfg.Args).
			Str("dir", b.cfg.Dir).
			Msg("Running build command")

		cmd := exec.CommandContext(buildCtx, b.cfg.Command, b.cfg.Args...)
		cmd.Dir = b.cfg.Dir
		cmd.Env = b.environ()

		output, err := cmd.CombinedOutput()
		stats.Output = string(output)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			stats.Errors = diagnostics(stats.Output)
			if len(stats.Errors) == 0 {
				stats.Errors = []string{exitErr.Error()}
			}
			return stats, nil
		case err != nil:
			return nil, fmt.Errorf("running build command %q: %w", b.cfg.Command, err)
		}
		stats.Warnings = warnings(stats.Output)
	}

	chunks, err := scanChunks(stats.OutputPath)
	if errors.Is(err, fs.ErrNotExist) {
		stats.Errors = []string{fmt.Sprintf("output directory %s was not created", stats.OutputPath)}
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning build output: %w", err)
	}
	stats.Chunks = chunks

	return stats, nil
}

func (b *CommandBundler) environ() []string {
	env := os.Environ()
	for k, v := range b.cfg.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// diagnostics returns the non-empty lines of the tool output.
func diagnostics(output string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func warnings(output string) []string {
	var result []string
	for _, line := range diagnostics(output) {
		if strings.Contains(strings.ToLower(line), "warning") {
			result = append(result, line)
		}
	}
	return result
}

// scanChunks groups the files under dir by chunk name: the relative path with
// a trailing .map and one further extension removed, so handler.js and
// handler.js.map both belong to chunk "handler".
func scanChunks(dir string) ([]Chunk, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	byName := make(map[string][]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		name := ChunkName(rel)
		byName[name] = append(byName[name], rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	chunks := make([]Chunk, 0, len(names))
	for _, name := range names {
		files := byName[name]
		sort.Strings(files)
		chunks = append(chunks, Chunk{Name: name, Files: files})
	}
	return chunks, nil
}

// ChunkName derives the chunk name for an output file path.
func ChunkName(rel string) string {
	name := strings.TrimSuffix(rel, ".map")
	return strings.TrimSuffix(name, filepath.Ext(name))
}
