// Package transport provides a retrying HTTP client for token, JWKS, and
// discovery requests, carrying a request-tracing correlation ID and
// honoring Retry-After on 429 with exponential backoff when the header is
// absent. Session/epoch-specific request shaping belongs to a different
// kind of API and is out of scope here.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// MaxRetries bounds retry attempts for 429 responses.
	MaxRetries = 3

	// DefaultBackoff is the base exponential backoff when Retry-After is
	// absent.
	DefaultBackoff = 1 * time.Second

	defaultTimeout = 30 * time.Second
)

// Client wraps http.Client with correlation-ID injection and 429 retry.
type Client struct {
	httpClient *http.Client
}

// New builds a Client with the given timeout (defaultTimeout if zero).
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Do executes req, retrying on 429 per Retry-After or exponential backoff.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	correlationID := uuid.New().String()
	logger := log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("correlationId", correlationID).
		Logger()

	return c.doWithRetry(ctx, req, &logger, correlationID, 0)
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	reqClone, err := cloneRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to clone request: %w", err)
	}
	reqClone.Header.Set("X-Correlation-ID", correlationID)

	start := time.Now()
	resp, err := c.httpClient.Do(reqClone)
	duration := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("request failed")
		return nil, err
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int("retryCount", retryCount).
		Msg("request completed")

	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}
	return c.handleRateLimit(ctx, req, resp, logger, correlationID, retryCount)
}

func (c *Client) handleRateLimit(ctx context.Context, req *http.Request, resp *http.Response, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	resp.Body.Close()

	if retryCount >= MaxRetries {
		logger.Warn().Msg("rate limited, max retries exceeded")
		return nil, RateLimited{RetryAfterSeconds: int(retryAfter.Seconds())}
	}

	if retryAfter == 0 {
		retryAfter = DefaultBackoff * time.Duration(1<<retryCount)
	}

	logger.Warn().Dur("retryAfter", retryAfter).Int("retryCount", retryCount).Msg("rate limited, backing off")

	select {
	case <-time.After(retryAfter):
		return c.doWithRetry(ctx, req, logger, correlationID, retryCount+1)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RateLimited is returned when a request exhausts its 429 retries.
type RateLimited struct {
	RetryAfterSeconds int
}

func (e RateLimited) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds)
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	reqClone, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		if k == "X-Correlation-ID" {
			continue
		}
		reqClone.Header[k] = v
	}
	return reqClone, nil
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
