package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRebuild(t *testing.T) {
	published := testutil.ToFloat64(rebuildsTotal.WithLabelValues(RebuildPublished))
	failed := testutil.ToFloat64(rebuildsTotal.WithLabelValues(RebuildFailed))

	RecordRebuild(RebuildPublished, 20*time.Millisecond)
	RecordRebuild(RebuildFailed, 0)

	assert.Equal(t, published+1, testutil.ToFloat64(rebuildsTotal.WithLabelValues(RebuildPublished)))
	assert.Equal(t, failed+1, testutil.ToFloat64(rebuildsTotal.WithLabelValues(RebuildFailed)))
}

func TestSetPublished(t *testing.T) {
	SetPublished(3)

	assert.Equal(t, float64(3), testutil.ToFloat64(modulesLoaded))
	assert.Equal(t, float64(1), testutil.ToFloat64(handlersReady))
}

func TestRecordFunctionInvocation(t *testing.T) {
	before := testutil.ToFloat64(functionInvocations.WithLabelValues("users", "proxy", "error"))

	RecordFunctionInvocation("users", "proxy", "error", 5*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(functionInvocations.WithLabelValues("users", "proxy", "error")))
}

func TestHandler(t *testing.T) {
	RecordHTTPRequest(http.MethodGet, "GET /users", http.StatusOK, time.Millisecond, 42)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `localgw_http_requests_total{method="GET",route="GET /users",status="200"}`), body)
	assert.Contains(t, body, "localgw_http_requests_in_flight")
}
