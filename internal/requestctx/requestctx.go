// Package requestctx carries per-request values through context.Context.
package requestctx

import (
	"context"
	"time"
)

type contextKey string

const infoKey contextKey = "request_info"

// Info is attached once per request by the outermost middleware. Inner
// handlers fill in Route and Function so outer middleware can report them
// after the request completes.
type Info struct {
	ID       string
	Start    time.Time
	Route    string
	Function string
}

func With(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

func From(ctx context.Context) *Info {
	if info, ok := ctx.Value(infoKey).(*Info); ok {
		return info
	}
	return nil
}

func RequestID(ctx context.Context) string {
	if info := From(ctx); info != nil {
		return info.ID
	}
	return ""
}

func RequestTime(ctx context.Context) time.Time {
	if info := From(ctx); info != nil {
		return info.Start
	}
	return time.Time{}
}

// SetFunction records the function a request was routed to. It is a no-op
// when the request did not pass through the request ID middleware.
func SetFunction(ctx context.Context, name string) {
	if info := From(ctx); info != nil {
		info.Function = name
	}
}

func Function(ctx context.Context) string {
	if info := From(ctx); info != nil {
		return info.Function
	}
	return ""
}

// SetRoute records the route pattern a request matched.
func SetRoute(ctx context.Context, route string) {
	if info := From(ctx); info != nil {
		info.Route = route
	}
}

func Route(ctx context.Context) string {
	if info := From(ctx); info != nil {
		return info.Route
	}
	return ""
}
