package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client is a wrapper for HTTP client with rate limiting and retries
type Client struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter

	maxRetries      int
	maxRetryTimeout time.Duration
	initialInterval time.Duration
	logger          zerolog.Logger
}

// ClientOptions holds options for creating a new Client
type ClientOptions struct {
	Timeout         time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
	// InitialInterval is the first backoff delay
	InitialInterval time.Duration
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(opts ClientOptions) *Client {
	// Set default values if not provided
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxRetryTimeout == 0 {
		opts.MaxRetryTimeout = 30 * time.Second
	}
	if opts.InitialInterval == 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: opts.Timeout,
		},
		Limiter:         rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		maxRetries:      opts.MaxRetries,
		maxRetryTimeout: opts.MaxRetryTimeout,
		initialInterval: opts.InitialInterval,
		logger:          log.With().Str("component", "http_client").Logger(),
	}
}

// Get fetches url and returns the body of a 200 response.
// Server errors and 429 are retried with exponential backoff, other statuses are not.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	attempt := 0

	operation := func() error {
		attempt++

		// Wait for rate limiter
		if err := c.Limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// drain so the connection can be reused
			_, _ = io.Copy(io.Discard, resp.Body)
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode}
			if statusErr.Temporary() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Request failed, retrying")
	}

	if err := backoff.RetryNotify(operation, c.backoff(ctx), notify); err != nil {
		return nil, err
	}

	return body, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.InitialInterval = c.initialInterval
	backoffStrategy.MaxElapsedTime = c.maxRetryTimeout

	return backoff.WithContext(backoff.WithMaxRetries(backoffStrategy, uint64(c.maxRetries)), ctx)
}

// HTTPStatusError represents an error due to a non-200 HTTP status code
type HTTPStatusError struct {
	StatusCode int
}

// Error implements the error interface
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("non-200 status code: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the request is worth retrying
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
