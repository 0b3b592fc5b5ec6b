// Package lambda defines the function invocation contract: the event a
// handler receives, its invocation context, the proxy response shape, and the
// loaders that turn compiled artifacts into callable handlers.
package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Handler is a resolved function export. Returning is the completion
// callback: a non-nil error reports failure, otherwise the result is the
// success value.
type Handler func(ctx context.Context, event *Event, lc *Context) (any, error)

// Event is the invocation payload built from an HTTP request.
type Event struct {
	Method         string
	Headers        map[string]string
	Body           any
	PathParams     map[string]string
	QueryParams    map[string]any
	Resource       string
	Path           string
	RequestContext RequestContext
	// Proxy selects the proxy-integration key set when serialized.
	Proxy bool
}

// RequestContext describes the request that produced an event.
type RequestContext struct {
	RequestID        string `json:"requestId"`
	Stage            string `json:"stage"`
	HTTPMethod       string `json:"httpMethod"`
	ResourcePath     string `json:"resourcePath"`
	RequestTimeEpoch int64  `json:"requestTimeEpoch"`
}

// MarshalJSON renders the event in the shape of its integration mode:
// pathParameters/queryStringParameters for proxy, path/query for raw.
func (e *Event) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"method":         e.Method,
		"headers":        e.Headers,
		"body":           e.Body,
		"requestContext": e.RequestContext,
	}
	if e.Proxy {
		out["pathParameters"] = e.PathParams
		out["queryStringParameters"] = e.QueryParams
		out["resource"] = e.Resource
		out["path"] = e.Path
	} else {
		out["path"] = e.PathParams
		out["query"] = e.QueryParams
	}
	return json.Marshal(out)
}

// Context is the invocation context passed alongside an event.
type Context struct {
	AWSRequestID       string `json:"awsRequestId"`
	FunctionName       string `json:"functionName"`
	FunctionVersion    string `json:"functionVersion"`
	InvokedFunctionArn string `json:"invokedFunctionArn"`
	MemoryLimitInMB    int    `json:"memoryLimitInMB"`
	LogGroupName       string `json:"logGroupName"`
	LogStreamName      string `json:"logStreamName"`
	DeadlineMs         int64  `json:"deadlineMs"`
}

// ContextOptions configures NewContext.
type ContextOptions struct {
	Service    string
	Stage      string
	Function   string
	RequestID  string
	MemorySize int
	Timeout    time.Duration
}

// NewContext builds the invocation context for one call of a function.
func NewContext(opts ContextOptions) *Context {
	requestID := opts.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	qualified := opts.Function
	if opts.Service != "" {
		qualified = fmt.Sprintf("%s-%s-%s", opts.Service, opts.Stage, opts.Function)
	}
	now := time.Now()

	return &Context{
		AWSRequestID:       requestID,
		FunctionName:       qualified,
		FunctionVersion:    "$LATEST",
		InvokedFunctionArn: "arn:aws:lambda:local:000000000000:function:" + qualified,
		MemoryLimitInMB:    opts.MemorySize,
		LogGroupName:       "/aws/lambda/" + qualified,
		LogStreamName:      now.Format("2006/01/02") + "/[$LATEST]" + uuid.New().String(),
		DeadlineMs:         now.Add(opts.Timeout).UnixMilli(),
	}
}

// RemainingTime returns the time left before the context's deadline.
func (c *Context) RemainingTime() time.Duration {
	return time.Until(time.UnixMilli(c.DeadlineMs))
}

// ProxyResponse is the success value a proxy-integration handler returns.
// Header values may be any scalar; handlers commonly return numbers and
// booleans there.
type ProxyResponse struct {
	StatusCode        int              `json:"statusCode"`
	Headers           map[string]any   `json:"headers,omitempty"`
	MultiValueHeaders map[string][]any `json:"multiValueHeaders,omitempty"`
	Body              any              `json:"body,omitempty"`
	IsBase64Encoded   bool             `json:"isBase64Encoded,omitempty"`
}

// HeaderValue renders a header value the way it appears on the wire.
// A nil value yields ok false.
func HeaderValue(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	default:
		return fmt.Sprint(s), true
	}
}

// ErrMalformedProxyResponse is returned when a proxy handler's success value
// cannot be read as a ProxyResponse.
var ErrMalformedProxyResponse = errors.New("malformed proxy response")

// AsProxyResponse reads a handler's success value as a ProxyResponse.
func AsProxyResponse(result any) (*ProxyResponse, error) {
	switch v := result.(type) {
	case *ProxyResponse:
		if v == nil {
			return nil, ErrMalformedProxyResponse
		}
		return v, nil
	case ProxyResponse:
		return &v, nil
	case nil:
		return nil, ErrMalformedProxyResponse
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedProxyResponse, err)
	}
	var resp ProxyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedProxyResponse, err)
	}
	return &resp, nil
}

// FunctionError is a failure reported by a handler.
type FunctionError struct {
	Message string `json:"errorMessage"`
	Type    string `json:"errorType"`
}

func (e *FunctionError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// AsFunctionError converts any handler error into a FunctionError.
func AsFunctionError(err error) *FunctionError {
	var fnErr *FunctionError
	if errors.As(err, &fnErr) {
		return fnErr
	}
	return &FunctionError{Message: err.Error(), Type: "Error"}
}
