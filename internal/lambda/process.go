package lambda

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Environment variables of the process handler protocol.
const (
	EnvListExports = "LOCALGW_LIST_EXPORTS"
	EnvHandler     = "LOCALGW_HANDLER"
)

// ErrNoEntrypoint is returned when a module's artifacts contain no loadable file.
var ErrNoEntrypoint = errors.New("no entrypoint among module artifacts")

// ProcessLoader loads modules compiled to executables.
//
// Protocol: run with LOCALGW_LIST_EXPORTS=1 the executable prints a JSON array
// of export names. Run with LOCALGW_HANDLER=<export> it reads
// {"event":...,"context":...} from stdin and prints {"result":...} or
// {"error":{"errorMessage":...,"errorType":...}} to stdout. Stderr is treated
// as function log output.
type ProcessLoader struct {
	root string
	env  []string

	mu  sync.Mutex
	seq int
}

// NewProcessLoader creates a loader that snapshots artifacts under a fresh
// temporary directory inside baseDir (os.TempDir when empty).
func NewProcessLoader(baseDir string, env map[string]string) (*ProcessLoader, error) {
	root, err := os.MkdirTemp(baseDir, "localgw-modules-")
	if err != nil {
		return nil, fmt.Errorf("creating module directory: %w", err)
	}

	l := &ProcessLoader{root: root}
	for k, v := range env {
		l.env = append(l.env, k+"="+v)
	}
	return l, nil
}

// Close removes every snapshot.
func (l *ProcessLoader) Close() error {
	return os.RemoveAll(l.root)
}

// Load snapshots the module's entrypoint and reads its export list. The
// snapshot isolates the module from later rebuilds that overwrite the
// artifact in place.
func (l *ProcessLoader) Load(ctx context.Context, name string, files []string) (Module, error) {
	entry := entrypoint(files)
	if entry == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEntrypoint, name)
	}

	l.mu.Lock()
	l.seq++
	dir := filepath.Join(l.root, fmt.Sprintf("%06d", l.seq))
	l.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	snapshot := filepath.Join(dir, filepath.Base(entry))
	if err := copyExecutable(entry, snapshot); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("snapshotting %s: %w", entry, err)
	}

	m := &processModule{name: name, dir: dir, path: snapshot, env: l.env}
	exports, err := m.listExports(ctx)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("loading module %s: %w", name, err)
	}
	m.exports = exports

	log.Debug().
		Str("module", name).
		Str("artifact", entry).
		Strs("exports", exports).
		Msg("Loaded module")

	return m, nil
}

// entrypoint picks the first artifact that is not a source map.
func entrypoint(files []string) string {
	for _, f := range files {
		if !strings.HasSuffix(f, ".map") {
			return f
		}
	}
	return ""
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

type processModule struct {
	name    string
	dir     string
	path    string
	env     []string
	exports []string
}

type invocation struct {
	Event   *Event   `json:"event"`
	Context *Context `json:"context"`
}

type invocationResult struct {
	Result json.RawMessage `json:"result"`
	Error  *FunctionError  `json:"error"`
}

func (m *processModule) Name() string { return m.name }

func (m *processModule) Close() error {
	return os.RemoveAll(m.dir)
}

func (m *processModule) Lookup(export string) (Handler, error) {
	found := false
	for _, e := range m.exports {
		if e == export {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s.%s (available: %v)", ErrExportNotFound, m.name, export, m.exports)
	}

	return func(ctx context.Context, event *Event, lc *Context) (any, error) {
		return m.invoke(ctx, export, event, lc)
	}, nil
}

func (m *processModule) listExports(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, m.path)
	cmd.Env = append(m.environ(), EnvListExports+"=1")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing exports: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var exports []string
	if err := json.Unmarshal(out, &exports); err != nil {
		return nil, fmt.Errorf("parsing export list: %w", err)
	}
	return exports, nil
}

func (m *processModule) invoke(ctx context.Context, export string, event *Event, lc *Context) (any, error) {
	payload, err := json.Marshal(invocation{Event: event, Context: lc})
	if err != nil {
		return nil, fmt.Errorf("encoding invocation: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.path)
	cmd.Env = append(m.environ(), EnvHandler+"="+export)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	m.forwardLogs(lc, &stderr)

	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return nil, &FunctionError{Message: msg, Type: "Runtime.ExitError"}
	}

	var res invocationResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, &FunctionError{Message: "invalid handler output: " + err.Error(), Type: "Runtime.InvalidResponse"}
	}
	if res.Error != nil {
		return nil, res.Error
	}
	if len(res.Result) == 0 {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return nil, &FunctionError{Message: "invalid handler result: " + err.Error(), Type: "Runtime.InvalidResponse"}
	}
	return result, nil
}

func (m *processModule) environ() []string {
	return append(os.Environ(), m.env...)
}

func (m *processModule) forwardLogs(lc *Context, stderr *bytes.Buffer) {
	scanner := bufio.NewScanner(bytes.NewReader(stderr.Bytes()))
	for scanner.Scan() {
		log.Info().
			Str("function", lc.FunctionName).
			Str("request_id", lc.AWSRequestID).
			Msg(scanner.Text())
	}
}
