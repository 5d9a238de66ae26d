package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rickgao/polymarket-data/internal/metrics"
)

// Failure classes. Every error returned by the client matches exactly one of
// ErrTransient or ErrPermanent under errors.Is, unless it is a context error.
var (
	ErrTransient        = errors.New("transient failure")
	ErrPermanent        = errors.New("permanent failure")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrMalformedBody    = errors.New("malformed response body")
)

// IsTransient reports whether err is a retryable failure (including exhausted retries).
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// APIError represents a non-2xx response from the data API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	RetryAfter time.Duration // Parsed Retry-After header, 0 if absent
}

func (e *APIError) Error() string {
	return fmt.Sprintf("polymarket api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Is maps the status code onto the transient/permanent classes.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.IsRetryable()
	case ErrPermanent:
		return !e.IsRetryable()
	}
	return false
}

// doRequest performs a single GET attempt.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrPermanent, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("do request: %w", ctxErr)
		}
		// Timeouts, refused and reset connections.
		return nil, fmt.Errorf("%w: do request: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("read response: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: read response: %w", ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	return body, nil
}

// doWithRetry performs a request, retrying transient failures with exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	bo := newBackoff(c.baseDelay, c.maxDelay, c.jitter)
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := bo.delay(retryAfterHint(lastErr))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", wait,
				"path", path,
				"err", lastErr,
			)
			metrics.HTTPRetries.WithLabelValues(endpoint).Inc()

			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		body, err := c.doRequest(ctx, path, query)
		metrics.HTTPRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.HTTPRequests.WithLabelValues(endpoint, "success").Inc()
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, err
		}

		lastErr = err
		if !IsTransient(err) {
			metrics.HTTPRequests.WithLabelValues(endpoint, "permanent").Inc()
			return nil, err
		}
		metrics.HTTPRequests.WithLabelValues(endpoint, "transient").Inc()
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.maxAttempts, lastErr)
}

// get performs a GET request with retries and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, endpoint, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return malformed("unmarshal response: %v", err)
	}

	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrPermanent, ErrMalformedBody, fmt.Sprintf(format, args...))
}

func retryAfterHint(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
