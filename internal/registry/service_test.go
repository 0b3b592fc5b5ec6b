package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceYAML = `
service: orders
provider:
  name: aws
  stage: qa
  apiGateway:
    minimumCompressionSize: 1024
package:
  individually: true
custom:
  includeMaps: true
functions:
  zeta:
    handler: src/zeta.handler
    events:
      - http: GET zeta
  create:
    handler: src/handlers/orders.create
    package:
      include:
        - assets/**
    events:
      - http:
          method: post
          path: orders
          cors: true
      - schedule: rate(1 minute)
  show:
    handler: ./src/handlers/orders.show
    events:
      - http:
          method: get
          path: orders/{id}
          integration: lambda
          cors:
            origins:
              - https://example.com
            methods:
              - GET
            headers:
              - X-Api-Key
  worker:
    handler: src/worker.run
    events:
      - sqs: arn:aws:sqs:queue
`

func TestParse(t *testing.T) {
	svc, err := Parse([]byte(testServiceYAML))
	require.NoError(t, err)

	assert.Equal(t, "orders", svc.Name)
	assert.Equal(t, "qa", svc.Stage())
	assert.True(t, svc.Package.Individually)
	assert.True(t, svc.Custom.IncludeMaps)
	require.NotNil(t, svc.Provider.APIGateway.MinimumCompressionSize)
	assert.Equal(t, 1024, *svc.Provider.APIGateway.MinimumCompressionSize)
	assert.Equal(t, []string{"zeta", "create", "show", "worker"}, svc.FunctionNames())

	create, ok := svc.Function("create")
	require.True(t, ok)
	assert.Equal(t, "src/handlers/orders", create.Module())
	assert.Equal(t, "create", create.Export())
	assert.Equal(t, []string{"assets/**"}, create.Package.Include)
	require.Len(t, create.Events, 1)
	assert.Equal(t, "post", create.Events[0].Method)
	assert.True(t, create.Events[0].IsProxy())
	require.NotNil(t, create.Events[0].CORS)
	assert.False(t, create.Events[0].CORS.Custom)

	show, ok := svc.Function("show")
	require.True(t, ok)
	assert.Equal(t, "src/handlers/orders", show.Module())
	require.Len(t, show.Events, 1)
	trigger := show.Events[0]
	assert.False(t, trigger.IsProxy())
	require.NotNil(t, trigger.CORS)
	assert.True(t, trigger.CORS.Custom)
	assert.Equal(t, []string{"https://example.com"}, trigger.CORS.Origins)
	assert.Equal(t, []string{"GET"}, trigger.CORS.Methods)
	assert.Equal(t, []any{"X-Api-Key"}, trigger.CORS.Headers)

	zeta, _ := svc.Function("zeta")
	require.Len(t, zeta.Events, 1)
	assert.Equal(t, "GET", zeta.Events[0].Method)
	assert.Equal(t, "zeta", zeta.Events[0].Path)

	worker, _ := svc.Function("worker")
	assert.False(t, worker.HasHTTP())
	assert.Len(t, svc.HTTPFunctions(), 3)
}

func TestParse_DefaultStage(t *testing.T) {
	svc, err := Parse([]byte("service:\n  name: bare\n"))
	require.NoError(t, err)
	assert.Equal(t, "bare", svc.Name)
	assert.Equal(t, DefaultStage, svc.Stage())
	assert.Empty(t, svc.Functions())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "missing handler",
			yaml:  "functions:\n  a:\n    events: []\n",
			field: "handler",
		},
		{
			name:  "handler without export",
			yaml:  "functions:\n  a:\n    handler: src/a\n",
			field: "handler",
		},
		{
			name:  "unknown method",
			yaml:  "functions:\n  a:\n    handler: a.b\n    events:\n      - http:\n          method: fetch\n          path: x\n",
			field: "http.method",
		},
		{
			name:  "bad shorthand",
			yaml:  "functions:\n  a:\n    handler: a.b\n    events:\n      - http: GET\n",
			field: "http",
		},
		{
			name:  "cors string",
			yaml:  "functions:\n  a:\n    handler: a.b\n    events:\n      - http:\n          method: get\n          path: x\n          cors: sometimes\n",
			field: "http.cors",
		},
		{
			name:  "negative compression size",
			yaml:  "provider:\n  apiGateway:\n    minimumCompressionSize: -1\n",
			field: "provider.apiGateway.minimumCompressionSize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParse_CORSDisabled(t *testing.T) {
	svc, err := Parse([]byte("functions:\n  a:\n    handler: a.b\n    events:\n      - http:\n          method: get\n          path: x\n          cors: false\n"))
	require.NoError(t, err)

	fn, _ := svc.Function("a")
	assert.Nil(t, fn.Events[0].CORS)
}

func TestSplitHandler(t *testing.T) {
	tests := []struct {
		ref    string
		module string
		export string
	}{
		{"handler.hello", "handler", "hello"},
		{"src/api/users.list", "src/api/users", "list"},
		{"./lib/v1.2/h.run", "lib/v1.2/h", "run"},
		{"noexport", "noexport", ""},
	}

	for _, tt := range tests {
		module, export := SplitHandler(tt.ref)
		if module != tt.module || export != tt.export {
			t.Errorf("SplitHandler(%q) = %q, %q; want %q, %q", tt.ref, module, export, tt.module, tt.export)
		}
	}
}

func TestSetPackageInclude(t *testing.T) {
	svc := New("svc", "", &Function{Name: "a", Handler: "a.b"})

	require.NoError(t, svc.SetPackageInclude("a", []string{"!**", "a.js"}))
	fn, _ := svc.Function("a")
	assert.Equal(t, []string{"!**", "a.js"}, fn.Package.Include)

	assert.Error(t, svc.SetPackageInclude("missing", nil))
}

func TestLoadAndLocate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serverless.yml")
	require.NoError(t, os.WriteFile(path, []byte(testServiceYAML), 0o644))

	found, err := Locate(dir, "")
	require.NoError(t, err)
	assert.Equal(t, path, found)

	svc, err := Load(found)
	require.NoError(t, err)
	assert.Equal(t, dir, svc.Path)
	assert.Len(t, svc.Functions(), 4)

	_, err = Locate(t.TempDir(), "")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	_, err = Locate(dir, filepath.Join(dir, "missing.yml"))
	assert.ErrorIs(t, err, ErrServiceNotFound)
}
