package gateway

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/localgw/internal/config"
	"github.com/watzon/localgw/internal/lambda"
	"github.com/watzon/localgw/internal/registry"
)

func TestGateway_MinimumCompressionSize(t *testing.T) {
	svc := registry.New("shop", "dev",
		fn("big", "src/big.handler", registry.Trigger{Method: "get", Path: "big", Integration: registry.IntegrationLambda}),
		fn("small", "src/small.handler", registry.Trigger{Method: "get", Path: "small", Integration: registry.IntegrationLambda}),
	)
	minSize := 1024
	svc.Provider.APIGateway.MinimumCompressionSize = &minSize

	table, err := NewRouteTable(svc, RouteOptions{})
	require.NoError(t, err)
	srv, err := New(config.Default(), table)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	big := strings.Repeat("localgw ", 512)
	text := func(s string) lambda.Handler {
		return func(context.Context, *lambda.Event, *lambda.Context) (any, error) { return s, nil }
	}
	_, err = table.Publish([]lambda.Handler{text(big), text("tiny")})
	require.NoError(t, err)

	get := func(path string) (*http.Response, []byte) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, data
	}

	resp, data := get("/big")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(strings.NewReader(string(data)))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, big, string(plain))

	resp, data = get("/small")
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Equal(t, "tiny", string(data))
}

func TestGateway_CompressionDisabledByDefault(t *testing.T) {
	g := newTestGateway(t, RouteOptions{},
		fn("big", "src/big.handler", registry.Trigger{Method: "get", Path: "big", Integration: registry.IntegrationLambda}),
	)
	big := strings.Repeat("x", 4096)
	g.publish(t, map[string]lambda.Handler{
		"big": func(context.Context, *lambda.Event, *lambda.Context) (any, error) { return big, nil },
	})

	req, err := http.NewRequest(http.MethodGet, g.server.URL+"/big", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}
