package workos

import (
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the WorkOS production API.
	DefaultBaseURL = "https://api.workos.com"

	defaultTimeout      = 10 * time.Second
	defaultRetryMax     = 3
	defaultRetryBackoff = 200 * time.Millisecond
)

// Option configures the Client.
type Option func(*options)

type options struct {
	baseURL      string
	timeout      time.Duration
	httpClient   *http.Client
	retryMax     int
	retryBackoff time.Duration
}

func defaultOptions() *options {
	return &options{
		baseURL:      DefaultBaseURL,
		timeout:      defaultTimeout,
		retryMax:     defaultRetryMax,
		retryBackoff: defaultRetryBackoff,
	}
}

// WithBaseURL overrides the API base URL. Empty values are ignored.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithTimeout sets the HTTP client timeout. Values <= 0 are ignored.
// Ignored when WithHTTPClient is used.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client. Nil values are ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithRetry sets the attempt count and initial backoff. maxAttempts of 1
// disables retries.
func WithRetry(maxAttempts int, initialBackoff time.Duration) Option {
	return func(o *options) {
		if maxAttempts > 0 {
			o.retryMax = maxAttempts
		}
		if initialBackoff > 0 {
			o.retryBackoff = initialBackoff
		}
	}
}
