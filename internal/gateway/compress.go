package gateway

import (
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// compress gzips responses of at least minSize bytes for clients that accept
// it. Responses that already carry a Content-Encoding pass through.
func compress(minSize int, next http.Handler) (http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(minSize))
	if err != nil {
		return nil, fmt.Errorf("configuring compression: %w", err)
	}
	return wrap(next), nil
}
