package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// DefaultMaxBodySize is the body size ceiling when none is configured.
const DefaultMaxBodySize int64 = 5 << 20

var (
	// ErrPayloadTooLarge is returned for bodies over the size ceiling.
	ErrPayloadTooLarge = errors.New("request entity too large")
	// ErrMalformedBody is returned for JSON or form bodies that do not parse.
	ErrMalformedBody = errors.New("malformed request body")
)

// readBody reads and decodes a request body. JSON and form-encoded bodies
// are parsed; other content is returned as a string. An empty body is an
// empty object.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) (any, error) {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if r.ContentLength > limit {
		return nil, ErrPayloadTooLarge
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrPayloadTooLarge
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch {
	case strings.Contains(strings.ToLower(contentType), "json"):
		var body any
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
		}
		return body, nil
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
		}
		return flattenValues(values), nil
	default:
		return string(data), nil
	}
}

// flattenValues keeps single values as strings and repeated keys as lists.
func flattenValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out
}

// flattenHeaders lower-cases header names and joins repeated values.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
