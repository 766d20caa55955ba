package fetch

import (
	"context"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer(
	"github.com/cpaggregator/cpaggregator/internal/fetch",
)

// Fetcher is the transport boundary every judge adapter talks through.
// Fetch issues a GET with query parameters and returns the response body;
// Do is the low-level escape hatch for adapters that need headers or
// cookies from the raw response.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, query url.Values) ([]byte, error)
	Do(ctx context.Context, method string, rawURL string, query url.Values, headers map[string]string) (*Response, error)
}

// Response carries the subset of the HTTP response adapters care about.
type Response struct {
	Body       []byte
	StatusCode int
	Cookies    map[string]string
}

// TransportError is returned once retries are exhausted or a request
// comes back with a non-success status.
type TransportError struct {
	URL        string
	StatusCode int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: status code %d", e.URL, e.StatusCode)
}
