// Package httpclient builds the HTTP client used to talk to the deployed
// demo application.
package httpclient

import (
	"net/http"
	"time"

	"coffeectl/pkg/logging"

	"github.com/hashicorp/go-retryablehttp"
)

// Options configures New.
type Options struct {
	// Timeout bounds each request, including reading the body.
	Timeout time.Duration
	// Retries is how often a failed request is retried. Zero means the
	// request is sent exactly once.
	Retries int
	// MaxConns caps idle connections per host; zero keeps the default.
	MaxConns int
}

// New returns a retrying client that hands back every response, including
// non-2xx ones, so callers can report status and body themselves.
func New(opts Options) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = logging.Logger().With("subsystem", "HTTP")

	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	if opts.MaxConns > 0 {
		if transport, ok := client.HTTPClient.Transport.(*http.Transport); ok {
			transport.MaxIdleConnsPerHost = opts.MaxConns
		}
	}
	return client
}
