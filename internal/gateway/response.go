package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/watzon/localgw/internal/lambda"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Message: message})
}

// FunctionError writes a handler failure as a 500.
func FunctionError(w http.ResponseWriter, err error) {
	JSON(w, http.StatusInternalServerError, lambda.AsFunctionError(err))
}

func writeProxy(w http.ResponseWriter, resp *lambda.ProxyResponse) error {
	var body []byte
	switch b := resp.Body.(type) {
	case nil:
	case string:
		body = []byte(b)
		if resp.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return err
			}
			body = decoded
		}
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		body = data
		w.Header().Set("Content-Type", "application/json")
	}

	h := w.Header()
	for k, v := range resp.Headers {
		if s, ok := lambda.HeaderValue(v); ok {
			h.Set(k, s)
		}
	}
	for k, values := range resp.MultiValueHeaders {
		h.Del(k)
		for _, v := range values {
			if s, ok := lambda.HeaderValue(v); ok {
				h.Add(k, s)
			}
		}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
	return nil
}

func writeRaw(w http.ResponseWriter, result any) {
	switch v := result.(type) {
	case nil:
		w.WriteHeader(http.StatusOK)
	case string:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(v))
	case []byte:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(v)
	default:
		JSON(w, http.StatusOK, v)
	}
}
