package bundler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

// Watch implements Bundler. Source directories are watched with fsnotify;
// changes under the output directory never trigger a rebuild.
func (b *CommandBundler) Watch(ctx context.Context, onRebuild RebuildFunc) error {
	matchers, err := compilePatterns(b.cfg.Watch)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	for _, root := range b.watchRoots() {
		if err := b.addTree(watcher, root); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}

	if err := b.rebuild(ctx, onRebuild); err != nil {
		return err
	}

	trigger := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) && isDir(event.Name) && !b.ignored(event.Name) {
				if err := b.addTree(watcher, event.Name); err != nil {
					log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
				}
			}

			if !b.relevant(event, matchers) {
				continue
			}

			log.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Source file changed")

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(b.cfg.Debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("File watcher error")

		case <-trigger:
			if err := b.rebuild(ctx, onRebuild); err != nil {
				return err
			}
		}
	}
}

func (b *CommandBundler) rebuild(ctx context.Context, onRebuild RebuildFunc) error {
	stats, err := b.Build(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return onRebuild(err, stats)
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		matcher, err := glob.Compile(filepath.ToSlash(pattern), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid watch pattern %q: %w", pattern, err)
		}
		matchers = append(matchers, matcher)
	}
	return matchers, nil
}

// watchRoots returns the directories that must be watched to observe every
// watch pattern.
func (b *CommandBundler) watchRoots() []string {
	if len(b.cfg.Watch) == 0 {
		return []string{b.cfg.Dir}
	}

	seen := make(map[string]bool)
	var roots []string
	for _, pattern := range b.cfg.Watch {
		root := extractBaseDir(filepath.Join(b.cfg.Dir, pattern))
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	return roots
}

func (b *CommandBundler) addTree(watcher *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		log.Warn().Str("dir", root).Msg("Watch directory does not exist")
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && b.ignored(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// ignored reports whether path is inside the output directory or a directory
// that never holds handler sources.
func (b *CommandBundler) ignored(path string) bool {
	if isWithin(b.OutputPath(), path) {
		return true
	}
	base := filepath.Base(path)
	return base == "node_modules" || (strings.HasPrefix(base, ".") && len(base) > 1)
}

func (b *CommandBundler) relevant(event fsnotify.Event, matchers []glob.Glob) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if isWithin(b.OutputPath(), event.Name) {
		return false
	}

	rel, err := filepath.Rel(b.cfg.Dir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	if len(matchers) == 0 {
		return !strings.HasPrefix(filepath.Base(rel), ".")
	}
	for _, m := range matchers {
		if m.Match(rel) {
			return true
		}
	}
	return false
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func extractBaseDir(pattern string) string {
	dir := filepath.Dir(pattern)
	for strings.ContainsAny(dir, "*?[{") {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}
