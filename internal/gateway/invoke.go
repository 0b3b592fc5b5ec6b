package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/localgw/internal/lambda"
	"github.com/watzon/localgw/internal/metrics"
	"github.com/watzon/localgw/internal/requestctx"
)

// InvokeOptions configures how requests become invocations.
type InvokeOptions struct {
	// MaxBodySize is the parsed body ceiling in bytes.
	MaxBodySize int64
	// DefaultMemorySize and DefaultTimeout apply when neither the function
	// nor the provider sets them.
	DefaultMemorySize int
	DefaultTimeout    time.Duration
}

// invoker serves the routes of one table.
type invoker struct {
	table *RouteTable
	opts  InvokeOptions
}

// optionsHandler answers OPTIONS with an empty 200.
func optionsHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// entryHandler invokes whatever handler is published for e at the moment the
// request arrives.
func (iv *invoker) entryHandler(e *RouteEntry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestctx.SetFunction(r.Context(), e.FunctionName())

		handlers := iv.table.Current()
		if handlers == nil {
			w.Header().Set("Retry-After", "1")
			Error(w, http.StatusServiceUnavailable, "Handlers are not built yet")
			return
		}

		body, err := readBody(w, r, iv.opts.MaxBodySize)
		if err != nil {
			if errors.Is(err, ErrPayloadTooLarge) {
				Error(w, http.StatusRequestEntityTooLarge, err.Error())
				return
			}
			Error(w, http.StatusBadRequest, err.Error())
			return
		}

		event := iv.event(e, r, body)
		lc := iv.context(e, r)

		start := time.Now()
		result, err := handlers.Handler(e)(context.WithoutCancel(r.Context()), event, lc)
		duration := time.Since(start)

		if err != nil {
			fnErr := lambda.AsFunctionError(err)
			log.Error().
				Str("request_id", lc.AWSRequestID).
				Str("function", e.FunctionName()).
				Str("error_type", fnErr.Type).
				Str("error", fnErr.Message).
				Msg("Function invocation failed")
			metrics.RecordFunctionInvocation(e.FunctionName(), e.Integration(), "error", duration)
			FunctionError(w, fnErr)
			return
		}
		metrics.RecordFunctionInvocation(e.FunctionName(), e.Integration(), "success", duration)

		if !e.Trigger.IsProxy() {
			writeRaw(w, result)
			return
		}

		resp, err := lambda.AsProxyResponse(result)
		if err == nil {
			err = writeProxy(w, resp)
		}
		if err != nil {
			log.Error().
				Err(err).
				Str("request_id", lc.AWSRequestID).
				Str("function", e.FunctionName()).
				Msg("Malformed proxy response")
			Error(w, http.StatusBadGateway, "Internal server error")
		}
	})
}

func (iv *invoker) event(e *RouteEntry, r *http.Request, body any) *lambda.Event {
	return &lambda.Event{
		Method:      r.Method,
		Headers:     flattenHeaders(r.Header),
		Body:        body,
		PathParams:  PathParams(r),
		QueryParams: flattenValues(r.URL.Query()),
		Resource:    e.Resource,
		Path:        r.URL.Path,
		RequestContext: lambda.RequestContext{
			RequestID:        requestctx.RequestID(r.Context()),
			Stage:            iv.table.Stage(),
			HTTPMethod:       r.Method,
			ResourcePath:     e.Resource,
			RequestTimeEpoch: requestTime(r).UnixMilli(),
		},
		Proxy: e.Trigger.IsProxy(),
	}
}

func (iv *invoker) context(e *RouteEntry, r *http.Request) *lambda.Context {
	svc := iv.table.Service()
	fn := e.Function

	memory := fn.MemorySize
	if memory == 0 {
		memory = svc.Provider.MemorySize
	}
	if memory == 0 {
		memory = iv.opts.DefaultMemorySize
	}

	timeout := time.Duration(fn.Timeout) * time.Second
	if timeout == 0 {
		timeout = time.Duration(svc.Provider.Timeout) * time.Second
	}
	if timeout == 0 {
		timeout = iv.opts.DefaultTimeout
	}

	return lambda.NewContext(lambda.ContextOptions{
		Service:    svc.Name,
		Stage:      iv.table.Stage(),
		Function:   fn.Name,
		RequestID:  requestctx.RequestID(r.Context()),
		MemorySize: memory,
		Timeout:    timeout,
	})
}

func requestTime(r *http.Request) time.Time {
	if t := requestctx.RequestTime(r.Context()); !t.IsZero() {
		return t
	}
	return time.Now()
}
