package gateway

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/watzon/localgw/internal/registry"
)

// CORSPolicy is the resolved CORS policy of one trigger.
type CORSPolicy struct {
	Origins []string `json:"origins"`
	Methods []string `json:"methods"`
	Headers []string `json:"headers"`

	origin, methods, headers string
}

// ResolveCORS computes the effective policy of a trigger. It returns nil when
// the trigger declares no CORS. OPTIONS and the trigger's own method are
// always allowed.
func ResolveCORS(fn string, t registry.Trigger) (*CORSPolicy, error) {
	if t.CORS == nil {
		return nil, nil
	}

	p := &CORSPolicy{
		Origins: []string{"*"},
		Methods: []string{http.MethodOptions},
		Headers: []string{"*"},
	}

	if t.CORS.Custom {
		if len(t.CORS.Origins) > 0 {
			p.Origins = slices.Clone(t.CORS.Origins)
		}
		p.Methods = make([]string, 0, len(t.CORS.Methods)+2)
		for _, m := range t.CORS.Methods {
			p.Methods = appendMethod(p.Methods, m)
		}
		p.Methods = appendMethod(p.Methods, http.MethodOptions)

		headers, err := corsHeaders(fn, t.CORS.Headers)
		if err != nil {
			return nil, err
		}
		if headers != nil {
			p.Headers = headers
		}
	}

	p.Methods = appendMethod(p.Methods, t.Method)

	p.origin = strings.Join(p.Origins, ",")
	p.methods = strings.Join(p.Methods, ",")
	p.headers = strings.Join(p.Headers, ",")
	return p, nil
}

func appendMethod(methods []string, method string) []string {
	method = strings.ToUpper(method)
	if slices.Contains(methods, method) {
		return methods
	}
	return append(methods, method)
}

// corsHeaders accepts an absent value or a list of strings.
func corsHeaders(fn string, value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return slices.Clone(v), nil
	case []any:
		headers := make([]string, 0, len(v))
		for _, h := range v {
			s, ok := h.(string)
			if !ok {
				return nil, &registry.ConfigError{Function: fn, Field: "cors.headers", Message: fmt.Sprintf("header %v is not a string", h)}
			}
			headers = append(headers, s)
		}
		return headers, nil
	default:
		return nil, &registry.ConfigError{Function: fn, Field: "cors.headers", Message: "must be a list of strings"}
	}
}

// Apply sets the policy's response headers.
func (p *CORSPolicy) Apply(h http.Header) {
	h.Set("Access-Control-Allow-Origin", p.origin)
	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.headers)
}

// withCORS sets the policy's headers before next runs. A nil policy leaves
// next unwrapped.
func withCORS(p *CORSPolicy, next http.Handler) http.Handler {
	if p == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Apply(w.Header())
		next.ServeHTTP(w, r)
	})
}
