package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/watzon/localgw/internal/build"
	"github.com/watzon/localgw/internal/bundler"
	"github.com/watzon/localgw/internal/config"
	"github.com/watzon/localgw/internal/gateway"
	"github.com/watzon/localgw/internal/lambda"
	"github.com/watzon/localgw/internal/registry"
)

const testService = `
service: shop
provider:
  name: aws
  stage: qa
package:
  individually: true
functions:
  list:
    handler: src/users.list
    events:
      - http:
          method: get
          path: users
          cors: true
  show:
    handler: src/users.show
    events:
      - http:
          method: get
          path: users/{id}
          integration: lambda
`

// stubBundler serves canned stats. Watch reports one build, then blocks
// until ctx is done.
type stubBundler struct {
	stats *bundler.Stats
	err   error
}

func (b *stubBundler) Build(context.Context) (*bundler.Stats, error) {
	return b.stats, b.err
}

func (b *stubBundler) Watch(ctx context.Context, onRebuild bundler.RebuildFunc) error {
	if err := onRebuild(b.err, b.stats); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func writeService(t *testing.T) *registry.Service {
	t.Helper()

	path := filepath.Join(t.TempDir(), "serverless.yml")
	require.NoError(t, os.WriteFile(path, []byte(testService), 0o644))

	svc, err := loadService(&config.Config{Service: config.ServiceConfig{Path: path}})
	require.NoError(t, err)
	return svc
}

func TestLoadService(t *testing.T) {
	svc := writeService(t)
	assert.Equal(t, "shop", svc.Name)
	assert.Equal(t, []string{"list", "show"}, svc.FunctionNames())

	_, err := loadService(&config.Config{Service: config.ServiceConfig{Path: filepath.Join(t.TempDir(), "missing.yml")}})
	assert.ErrorIs(t, err, registry.ErrServiceNotFound)
}

func TestPackageService(t *testing.T) {
	svc := writeService(t)
	outDir := t.TempDir()

	b := &stubBundler{stats: &bundler.Stats{
		OutputPath: outDir,
		Chunks: []bundler.Chunk{
			{Name: "src/users", Files: []string{"src/users.js", "src/users.js.map"}},
		},
	}}

	var out bytes.Buffer
	result, err := packageService(context.Background(), b, svc, &out, "packages.yml")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "src/users.js")
	require.Len(t, result.Packages, 2)

	list, ok := svc.Function("list")
	require.True(t, ok)
	assert.Equal(t, []string{build.ExcludeAll, "src/users.js"}, list.Package.Include)

	data, err := os.ReadFile(filepath.Join(outDir, "packages.yml"))
	require.NoError(t, err)

	var manifest packageManifest
	require.NoError(t, yaml.Unmarshal(data, &manifest))
	assert.Equal(t, "shop", manifest.Service)
	assert.Equal(t, outDir, manifest.Output)
	require.Len(t, manifest.Functions, 2)
	assert.Equal(t, "list", manifest.Functions[0].Function)
	assert.Equal(t, []string{build.ExcludeAll, "src/users.js"}, manifest.Functions[0].Include)
}

func TestPackageCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serverless.yml")
	require.NoError(t, os.WriteFile(path, []byte(testService), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".build", "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".build", "src", "users.js"), []byte("// built"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"package", "--service", path, "--out", "packages.yml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "src/users.js")

	data, err := os.ReadFile(filepath.Join(dir, ".build", "packages.yml"))
	require.NoError(t, err)

	var manifest packageManifest
	require.NoError(t, yaml.Unmarshal(data, &manifest))
	assert.Equal(t, "shop", manifest.Service)
	require.Len(t, manifest.Functions, 2)
	assert.Equal(t, []string{build.ExcludeAll, "src/users.js"}, manifest.Functions[1].Include)
}

func TestPackageService_BuildErrors(t *testing.T) {
	svc := writeService(t)
	b := &stubBundler{stats: &bundler.Stats{
		OutputPath: t.TempDir(),
		Errors:     []string{"src/users.ts(3,1): unexpected token"},
	}}

	var out bytes.Buffer
	_, err := packageService(context.Background(), b, svc, &out, "")

	var buildErr *build.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, out.String(), "unexpected token")
}

func TestPrintRoutes(t *testing.T) {
	svc := writeService(t)

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printRoutes(&out, svc, gateway.RouteOptions{StagePrefix: true}, false))

		text := out.String()
		assert.Contains(t, text, "METHOD")
		assert.Contains(t, text, "/qa/users")
		assert.Contains(t, text, "/qa/users/:id")
		assert.Contains(t, text, "lambda")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printRoutes(&out, svc, gateway.RouteOptions{Stage: "local", StagePrefix: true}, true))

		var routes []gateway.RouteInfo
		require.NoError(t, json.Unmarshal(out.Bytes(), &routes))
		require.Len(t, routes, 2)
		assert.Equal(t, "GET", routes[0].Method)
		assert.Equal(t, "/local/users", routes[0].Path)
		assert.NotNil(t, routes[0].CORS)
		assert.Equal(t, "/local/users/:id", routes[1].Path)
		assert.Nil(t, routes[1].CORS)
	})
}

func newServeFixture(t *testing.T) (*gateway.Server, *gateway.RouteTable, *lambda.StaticLoader) {
	t.Helper()

	svc := writeService(t)
	table, err := gateway.NewRouteTable(svc, gateway.RouteOptions{})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	srv, err := gateway.New(cfg, table)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	loader := lambda.NewStaticLoader()
	loader.RegisterExports("src/users", map[string]lambda.Handler{
		"list": func(context.Context, *lambda.Event, *lambda.Context) (any, error) {
			return map[string]any{"statusCode": 200, "body": "users"}, nil
		},
		"show": func(_ context.Context, ev *lambda.Event, _ *lambda.Context) (any, error) {
			return "user " + ev.PathParams["id"], nil
		},
	})
	return srv, table, loader
}

func TestServe_PublishesAndStops(t *testing.T) {
	srv, table, loader := newServeFixture(t)
	reloader := build.NewReloader(table, loader)
	defer reloader.Close()

	b := &stubBundler{stats: &bundler.Stats{
		OutputPath: t.TempDir(),
		Chunks:     []bundler.Chunk{{Name: "src/users", Files: []string{"src/users.js"}}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, b, reloader) }()

	require.Eventually(t, table.Ready, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/users/42")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user 42", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_HardBuildErrorStops(t *testing.T) {
	srv, table, loader := newServeFixture(t)
	reloader := build.NewReloader(table, loader)
	defer reloader.Close()

	bundleErr := errors.New("bundler crashed")
	b := &stubBundler{err: bundleErr}

	done := make(chan error, 1)
	go func() { done <- serve(context.Background(), srv, b, reloader) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, bundleErr)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.False(t, table.Ready())
}
