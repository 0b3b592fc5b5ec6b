package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/localgw/internal/registry"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		stage    string
		template string
		want     string
	}{
		{"", "users", "/users"},
		{"", "/users/", "/users"},
		{"", "//users//{id}", "/users/:id"},
		{"", "users/{id}/orders/{orderId}", "/users/:id/orders/:orderId"},
		{"", "api/{proxy+}", "/api/*proxy"},
		{"", "files/{path+}", "/files/*path"},
		{"", "users/{user-id}", "/users/:user-id"},
		{"", "orgs/{org.id}/files/{file-path+}", "/orgs/:org.id/files/*file-path"},
		{"", "", "/"},
		{"", "/", "/"},
		{"dev", "users/{id}", "/dev/users/:id"},
		{"prod", "/", "/prod"},
	}

	for _, tt := range tests {
		t.Run(tt.stage+"|"+tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.stage, tt.template))
		})
	}
}

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
		params  map[string]string
	}{
		{"/users", "/users", true, map[string]string{}},
		{"/users", "/USERS", true, map[string]string{}},
		{"/users", "/users/", true, map[string]string{}},
		{"/users", "/users/1", false, nil},
		{"/users/:id", "/users/42", true, map[string]string{"id": "42"}},
		{"/users/:id", "/users/a%20b", true, map[string]string{"id": "a b"}},
		{"/users/:id", "/users/", false, nil},
		{"/users/:id", "/users", false, nil},
		{"/api/*proxy", "/api/a/b/c", true, map[string]string{"proxy": "a/b/c"}},
		{"/api/*proxy", "/api", true, map[string]string{"proxy": ""}},
		{"/api/*proxy", "/other/a", false, nil},
		{"/", "/", true, map[string]string{}},
		{"/", "/x", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			p, err := compilePattern(tt.pattern)
			require.NoError(t, err)

			params, ok := p.match(tt.path)
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, tt.params, params)
			}
		})
	}
}

func TestCompilePatternRejectsInnerWildcard(t *testing.T) {
	_, err := compilePattern("/api/*proxy/more")
	assert.Error(t, err)
}

func TestResolveCORS(t *testing.T) {
	t.Run("not declared", func(t *testing.T) {
		p, err := ResolveCORS("fn", registry.Trigger{Method: "get"})
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("default policy", func(t *testing.T) {
		p, err := ResolveCORS("fn", registry.Trigger{Method: "post", CORS: &registry.CORS{}})
		require.NoError(t, err)
		assert.Equal(t, []string{"*"}, p.Origins)
		assert.Equal(t, []string{"OPTIONS", "POST"}, p.Methods)
		assert.Equal(t, []string{"*"}, p.Headers)
	})

	t.Run("custom policy", func(t *testing.T) {
		p, err := ResolveCORS("fn", registry.Trigger{Method: "put", CORS: &registry.CORS{
			Custom:  true,
			Origins: []string{"https://a.test", "https://b.test"},
			Methods: []string{"get"},
			Headers: []any{"Content-Type", "X-Api-Key"},
		}})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.test", "https://b.test"}, p.Origins)
		assert.Equal(t, []string{"GET", "OPTIONS", "PUT"}, p.Methods)
		assert.Equal(t, []string{"Content-Type", "X-Api-Key"}, p.Headers)
	})

	t.Run("custom policy without fields", func(t *testing.T) {
		p, err := ResolveCORS("fn", registry.Trigger{Method: "get", CORS: &registry.CORS{Custom: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{"*"}, p.Origins)
		assert.Equal(t, []string{"OPTIONS", "GET"}, p.Methods)
		assert.Equal(t, []string{"*"}, p.Headers)
	})

	t.Run("headers not a list", func(t *testing.T) {
		_, err := ResolveCORS("fn", registry.Trigger{Method: "get", CORS: &registry.CORS{Custom: true, Headers: "Content-Type"}})
		var cfgErr *registry.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "fn", cfgErr.Function)
	})
}

func TestBuildRoutes(t *testing.T) {
	svc := registry.New("shop", "beta",
		&registry.Function{Name: "worker", Handler: "src/worker.run"},
		&registry.Function{
			Name:    "users",
			Handler: "src/users.handler",
			Events: []registry.Trigger{
				{Method: "get", Path: "users/{id}"},
				{Method: "any", Path: "users/{proxy+}", Integration: "lambda"},
			},
		},
	)

	entries, err := BuildRoutes(svc, RouteOptions{StagePrefix: true})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 0, entries[0].ID)
	assert.Equal(t, "GET", entries[0].Method)
	assert.Equal(t, "/beta/users/:id", entries[0].Path)
	assert.Equal(t, "users/{id}", entries[0].Resource)
	assert.Equal(t, "src/users", entries[0].Module)
	assert.Equal(t, "handler", entries[0].Export)
	assert.Equal(t, "proxy", entries[0].Integration())

	assert.Equal(t, 1, entries[1].ID)
	assert.Equal(t, "ANY", entries[1].Method)
	assert.Equal(t, "/beta/users/*proxy", entries[1].Path)
	assert.Equal(t, "lambda", entries[1].Integration())

	entries, err = BuildRoutes(svc, RouteOptions{StagePrefix: true, Stage: "local"})
	require.NoError(t, err)
	assert.Equal(t, "/local/users/:id", entries[0].Path)

	entries, err = BuildRoutes(svc, RouteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/users/:id", entries[0].Path)
}
