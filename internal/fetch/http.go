package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cpaggregator/cpaggregator/internal/logger"
)

// Ensure Client implements Fetcher interface.
var _ Fetcher = (*Client)(nil)

// Client wraps an *http.Client with the judge-facing fetch policy:
// a fixed-delay retry loop for throttling status codes and an optional
// per-judge outbound request budget.
type Client struct {
	client      *http.Client
	limiter     Limiter
	limiterKey  string
	userAgent   string
	backoff     time.Duration
	maxAttempts uint64
}

type ClientConfig struct {
	HTTPClient  *http.Client
	Limiter     Limiter
	LimiterKey  string
	UserAgent   string
	Backoff     time.Duration
	MaxAttempts int
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		client:      httpClient,
		limiter:     cfg.Limiter,
		limiterKey:  cfg.LimiterKey,
		userAgent:   cfg.UserAgent,
		backoff:     backoff,
		maxAttempts: uint64(maxAttempts),
	}
}

// Statuses the judges hand out for valid requests with empty or
// error payloads. Everything else is treated as throttling and retried.
func finalStatus(code int) bool {
	switch code {
	case http.StatusOK, http.StatusBadRequest, http.StatusNotFound:
		return true
	}
	return false
}

func (c *Client) Fetch(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Client.Fetch", trace.WithAttributes(
		attribute.String("url", rawURL),
	))
	defer span.End()

	fullURL := rawURL
	if len(query) > 0 {
		fullURL = rawURL + "?" + query.Encode()
	}

	var body []byte
	var statusCode int

	b := retry.NewConstant(c.backoff)
	b = retry.WithMaxRetries(c.maxAttempts-1, b)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := c.waitForBudget(ctx); err != nil {
			return err
		}

		logger.Logger.Debug("GET", "url", fullURL)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		if !finalStatus(resp.StatusCode) {
			logger.Logger.Warn("request throttled, backing off",
				"url", fullURL, "status", resp.StatusCode, "backoff", c.backoff)
			return retry.RetryableError(&TransportError{URL: fullURL, StatusCode: resp.StatusCode})
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return nil, err
	}

	if statusCode != http.StatusOK {
		err = &TransportError{URL: fullURL, StatusCode: statusCode}
		span.RecordError(err)
		span.SetStatus(codes.Error, "non-success status code")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "fetched page")
	return body, nil
}

func (c *Client) Do(
	ctx context.Context,
	method string,
	rawURL string,
	query url.Values,
	headers map[string]string,
) (*Response, error) {
	ctx, span := tracer.Start(ctx, "Client.Do", trace.WithAttributes(
		attribute.String("url", rawURL),
	))
	defer span.End()

	if err := c.waitForBudget(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to wait for request budget")
		return nil, err
	}

	fullURL := rawURL
	if len(query) > 0 {
		fullURL = rawURL + "?" + query.Encode()
	}

	logger.Logger.Debug(method, "url", fullURL)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct request")
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to perform request")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read response body")
		return nil, err
	}

	cookies := make(map[string]string)
	for _, cookie := range resp.Cookies() {
		cookies[cookie.Name] = cookie.Value
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "performed request")
	return &Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Cookies:    cookies,
	}, nil
}

// waitForBudget blocks until the per-judge request budget lets another
// request through. Fail-open: limiter errors are logged and ignored.
func (c *Client) waitForBudget(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	for {
		allowed, err := c.limiter.Allow(ctx, c.limiterKey)
		if err != nil {
			logger.Logger.Warn("request limiter failed, continuing", "error", err)
			return nil
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
