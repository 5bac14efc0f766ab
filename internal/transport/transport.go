// Package transport provides the rate-limited, retrying HTTP layer shared
// by every upstream client in the harvester. A single logical request is
// paced by a token-bucket limiter, attempted up to a bounded number of
// times with exponential backoff, and surfaces a typed error carrying the
// last upstream response once the attempt budget is spent.
//
// Only idempotent-safe operations may go through this layer: every attempt
// really hits the network, so callers must restrict themselves to GET and
// POST requests that are safe to repeat.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the per-request attempt budget.
	DefaultMaxAttempts = 5

	// defaultInitialBackoff is the first retry delay; it doubles on each
	// retry up to maxBackoffInterval.
	defaultInitialBackoff = 1 * time.Second
	maxBackoffInterval    = 16 * time.Second

	// minPacerRate is the floor applied to requested rates so the
	// inter-request interval never collapses toward infinity.
	minPacerRate = 0.1

	defaultUserAgent = "polyharvest/1.0"
)

// NewPacer returns a limiter that enforces a minimum spacing of 1/rps
// seconds between the starts of consecutive requests. Rates below 0.1
// requests per second are clamped to 0.1. The limiter serializes its own
// internal state, so one pacer may be shared by concurrent callers, but
// independent upstream services should each get their own.
func NewPacer(rps float64) *rate.Limiter {
	if rps < minPacerRate {
		rps = minPacerRate
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Options configures a Client. Zero values fall back to the defaults
// above; a nil Limiter disables pacing.
type Options struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	Limiter        *rate.Limiter
	UserAgent      string
	Logger         *slog.Logger
}

// Client issues JSON requests with pacing, bounded retries, and
// exponential backoff.
type Client struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	userAgent      string
	logger         *slog.Logger

	// backoffNotify observes each computed retry delay; tests use it to
	// assert the schedule.
	backoffNotify func(time.Duration)
}

// New creates a Client from the given options.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:        opts.Limiter,
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		userAgent:      opts.UserAgent,
		logger:         opts.Logger,
	}
}

// GetJSON issues a paced GET and decodes the response body into out.
// An empty 2xx body leaves out untouched. A 2xx body that fails to decode
// is a protocol violation and is returned without retrying.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	body, err := c.Do(ctx, http.MethodGet, rawURL, params, nil, nil)
	if err != nil {
		return err
	}
	return decodeBody(http.MethodGet, rawURL, body, out)
}

// PostJSON issues a paced POST with a JSON body and decodes the response
// into out. Extra headers are applied on every attempt.
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers http.Header, payload, out any) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("transport: encode request body: %w", err)
		}
	}
	body, err := c.Do(ctx, http.MethodPost, rawURL, nil, headers, encoded)
	if err != nil {
		return err
	}
	return decodeBody(http.MethodPost, rawURL, body, out)
}

// Do performs one logical request and returns the raw response body of the
// first successful attempt. Every failure mode below a 2xx (transport
// errors and all >=400 statuses alike) shares one attempt counter and one
// backoff curve; after the budget is spent the last observed error is
// wrapped in a *RetriesExhaustedError.
func (c *Client) Do(ctx context.Context, method, rawURL string, params url.Values, headers http.Header, body []byte) ([]byte, error) {
	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = maxBackoffInterval
	policy.MaxElapsedTime = 0 // the attempt budget bounds us, not wall time

	var (
		payload []byte
		lastErr error
	)
	attempts := 0

	op := func() error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("transport: build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			return lastErr
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: snippet(data)}
			lastErr = apiErr
			return apiErr
		}

		payload = data
		return nil
	}

	notify := func(err error, delay time.Duration) {
		c.logger.Debug("request attempt failed, backing off",
			"method", method,
			"url", rawURL,
			"attempt", attempts,
			"delay", delay,
			"error", err)
		if c.backoffNotify != nil {
			c.backoffNotify(delay)
		}
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, wrapped, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("transport: %s %s: %w", method, rawURL, ctxErr)
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, &RetriesExhaustedError{
			Method:   method,
			URL:      rawURL,
			Attempts: attempts,
			Last:     lastErr,
		}
	}
	return payload, nil
}

// decodeBody unmarshals a successful response. Parse failures indicate a
// broken server contract and are never retried.
func decodeBody(method, rawURL string, body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("transport: %s %s: malformed response body: %w", method, rawURL, err)
	}
	return nil
}
