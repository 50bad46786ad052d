package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/logger"
	"github.com/wonny/notes/backend/pkg/redis"
)

// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes
var ErrBodyTooLarge = errors.New("response body too large")

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 2 << 20
	initialDelay        = 500 * time.Millisecond
	maxDelay            = 5 * time.Second
)

// Client is an HTTP client with bounded retry, a shared rate limit and a
// response size cap
// ⭐ SSOT: 모든 외부 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient   *http.Client
	logger       *logger.Logger
	userAgent    string
	maxBodyBytes int64

	// retries is a hard bound; lookups fail fast rather than retry forever
	retries      int
	initialDelay time.Duration

	rateLimiter  *redis.RateLimiter
	rateLimitCfg redis.RateLimitConfig
	localLimiter *rate.Limiter
}

// New creates a client from cfg.HTTP, falling back to defaults for zero values
func New(cfg *config.Config, log *logger.Logger) *Client {
	h := cfg.HTTP
	if h.Timeout <= 0 {
		h.Timeout = defaultTimeout
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = defaultMaxBodyBytes
	}
	if h.MaxRetries < 0 {
		h.MaxRetries = 0
	}
	return &Client{
		httpClient:   &http.Client{Timeout: h.Timeout},
		logger:       log.WithComponent("httputil"),
		userAgent:    h.UserAgent,
		maxBodyBytes: int64(h.MaxBodyBytes),
		retries:      h.MaxRetries,
		initialDelay: initialDelay,
	}
}

// WithRetry overrides the retry bound and the first backoff delay
func (c *Client) WithRetry(retries int, delay time.Duration) *Client {
	c.retries = retries
	c.initialDelay = delay
	return c
}

// DisableRetry makes every request a single attempt
func (c *Client) DisableRetry() *Client {
	return c.WithRetry(0, 0)
}

// WithRateLimiter sets the shared Redis budget. When Redis is disabled a
// process-local token bucket with the same budget is used instead.
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *Client {
	c.rateLimiter = limiter
	c.rateLimitCfg = cfg
	if cfg.Limit > 0 && cfg.Window > 0 {
		c.localLimiter = rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.Limit)), cfg.Limit)
	}
	return c
}

// GetBody fetches url and returns the body of a 2xx response. Bodies above
// the configured cap fail with ErrBodyTooLarge.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrBodyTooLarge, c.maxBodyBytes, url)
	}
	return body, nil
}

// wait blocks on the shared limiter, or the local one when Redis is off
func (c *Client) wait(ctx context.Context) error {
	if c.rateLimiter != nil && c.rateLimiter.Enabled() {
		return c.rateLimiter.Wait(ctx, c.rateLimitCfg)
	}
	if c.localLimiter != nil {
		return c.localLimiter.Wait(ctx)
	}
	return nil
}

// do runs the request with exponential backoff on retryable statuses
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	log := c.logger.WithFields(map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})
	start := time.Now()
	delay := c.initialDelay

	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = c.httpClient.Do(req)
		if err == nil && !IsRetryableError(resp.StatusCode) {
			break
		}
		if attempt >= c.retries {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}

		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay,
		}).Warn("Retrying HTTP request")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}

	if err != nil {
		log.WithError(err).WithField("duration", time.Since(start)).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}

// IsRetryableError reports whether a status is worth retrying (5xx, 429)
func IsRetryableError(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
