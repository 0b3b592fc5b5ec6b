package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/localgw/internal/metrics"
	"github.com/watzon/localgw/internal/requestctx"
)

func chain(h http.Handler) http.Handler {
	return RequestIDMiddleware(ObserveMiddleware(RecoveryMiddleware(h)))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc", seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRecoveryMiddleware_AfterPartialWrite(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		panic("late")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
}

func TestRecoveryMiddleware_AbortHandlerPropagates(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	})
}

func TestObserveMiddleware_LabelsUnmatchedRequests(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/nowhere", nil))

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, scrape.Code)
	assert.Contains(t, scrape.Body.String(), `localgw_http_requests_total{method="DELETE",route="unmatched",status="418"}`)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, levelFor(http.StatusOK))
	assert.Equal(t, zerolog.InfoLevel, levelFor(http.StatusFound))
	assert.Equal(t, zerolog.WarnLevel, levelFor(http.StatusNotFound))
	assert.Equal(t, zerolog.ErrorLevel, levelFor(http.StatusBadGateway))
}
