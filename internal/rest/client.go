package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ekurt/marketfeed/internal/auth"
	"github.com/ekurt/marketfeed/internal/ratelimit"
)

// Request weights charged against the rate limit bucket.
const (
	weightSnapshot    = 50
	weightInstruments = 10
	weightOrder       = 10
)

// Client provides access to the venue REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// signer is nil for public-only clients.
	signer *auth.Signer
	bucket *ratelimit.Bucket

	maxRetries   int
	retryBackoff time.Duration

	// now is swapped in signing tests.
	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a REST client. bucket may be nil to disable rate
// limiting (tests only).
func NewClient(baseURL string, bucket *ratelimit.Bucket, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		bucket:       bucket,
		maxRetries:   3,
		retryBackoff: time.Second,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithSigner enables signing for private endpoints.
func WithSigner(signer *auth.Signer) Option {
	return func(c *Client) {
		c.signer = signer
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}
