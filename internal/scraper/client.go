package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"price-tracker/internal/util"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned for HTTP 404 so adapters can map missing products
// to a nil snapshot instead of a retry loop
var ErrNotFound = errors.New("not found")

const clientMaxAttempts = 3

// Client is the rate-limited HTTP client shared by all request paths of one
// scraper. The limiter caps the request rate per source; retries back off
// exponentially and a small random jitter precedes every request so scans do
// not hit the site in lockstep.
type Client struct {
	source  string
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// NewClient builds a client allowing requestsPerSecond sustained requests
// with a burst of the same size
func NewClient(source string, requestsPerSecond int, timeout time.Duration) *Client {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &Client{
		source:  source,
		httpc:   &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:  util.GetLogger(),
		sleep:   time.Sleep,
	}
}

// Get fetches url with rate limiting and retries. Responses with status 429
// or 5xx and transport errors are retried with exponential backoff; other 4xx
// statuses fail immediately, 404 as ErrNotFound.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < clientMaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		c.sleep(requestJitter())

		body, status, err := c.doRequest(ctx, url)
		if err != nil {
			lastErr = err
			if attempt < clientMaxAttempts-1 {
				util.FetchRetriesTotal.WithLabelValues(c.source, "network").Inc()
				c.logger.Warn("request failed, retrying",
					zap.String("source", c.source),
					zap.String("url", url),
					zap.Int("attempt", attempt+1),
					zap.Error(err))
				c.sleep(backoffFor(0, attempt))
			}
			continue
		}

		switch {
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusNotFound:
			return nil, ErrNotFound
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited by %s", c.source)
			if attempt < clientMaxAttempts-1 {
				util.FetchRetriesTotal.WithLabelValues(c.source, "throttled").Inc()
				wait := backoffFor(status, attempt)
				c.logger.Info("rate limited, backing off",
					zap.String("source", c.source),
					zap.Duration("wait", wait))
				c.sleep(wait)
			}
		case status >= 500:
			lastErr = fmt.Errorf("server error %d from %s", status, c.source)
			if attempt < clientMaxAttempts-1 {
				util.FetchRetriesTotal.WithLabelValues(c.source, "server_error").Inc()
				c.sleep(backoffFor(status, attempt))
			}
		default:
			return nil, fmt.Errorf("unexpected status %d for %s", status, url)
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", clientMaxAttempts, lastErr)
}

// GetJSON fetches url and decodes the response body into v
func (c *Client) GetJSON(ctx context.Context, url string, v interface{}) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ca;q=0.8")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// backoffFor returns the wait before retry number attempt (zero based).
// Throttling waits longer than plain server errors so the limiter window can
// recover.
func backoffFor(status, attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if status == http.StatusTooManyRequests {
		extra := time.Duration(1+rand.Intn(2000)) * time.Millisecond
		return base + time.Second + extra
	}
	return base
}

// requestJitter returns 10-100ms so request timing stays irregular
func requestJitter() time.Duration {
	return time.Duration(10+rand.Intn(91)) * time.Millisecond
}
