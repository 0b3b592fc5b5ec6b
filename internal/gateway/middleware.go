package gateway

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watzon/localgw/internal/lambda"
	"github.com/watzon/localgw/internal/metrics"
	"github.com/watzon/localgw/internal/requestctx"
)

// RequestIDHeader is echoed on every response and reused when the client
// sends one.
const RequestIDHeader = "X-Request-ID"

// unmatchedRoute labels requests that no trigger matched.
const unmatchedRoute = "unmatched"

// RequestIDMiddleware attaches the request info every later stage reads and
// writes. It must run outermost.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := requestctx.With(r.Context(), &requestctx.Info{ID: id, Start: time.Now()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ObserveMiddleware logs each function request once it completes and records
// it under the matched route. Gateway-internal endpoints are passed through.
func ObserveMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isInternal(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		metrics.IncrementInFlight()
		defer metrics.DecrementInFlight()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		ctx := r.Context()
		route := requestctx.Route(ctx)
		if route == "" {
			route = unmatchedRoute
		}
		metrics.RecordHTTPRequest(r.Method, route, rec.status, elapsed, rec.bytes)

		log.WithLevel(levelFor(rec.status)).
			Str("request_id", requestctx.RequestID(ctx)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Str("function", requestctx.Function(ctx)).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", elapsed).
			Msg("Request completed")
	})
}

// RecoveryMiddleware turns a panicking handler into a Runtime.Panic function
// error. It runs inside ObserveMiddleware so the 500 is logged and counted.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}

			ctx := r.Context()
			log.Error().
				Str("request_id", requestctx.RequestID(ctx)).
				Str("route", requestctx.Route(ctx)).
				Str("function", requestctx.Function(ctx)).
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Msg("Handler panicked")

			// Too late for a status once the handler has started its response.
			if rec, ok := w.(*statusRecorder); ok && rec.wroteHeader {
				return
			}
			JSON(w, http.StatusInternalServerError, &lambda.FunctionError{
				Message: fmt.Sprint(v),
				Type:    "Runtime.Panic",
			})
		}()
		next.ServeHTTP(w, r)
	})
}

func levelFor(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// statusRecorder captures what the inner handlers wrote.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Flush() {
	w.wroteHeader = true
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func isInternal(path string) bool {
	return strings.HasPrefix(path, InternalPrefix)
}
