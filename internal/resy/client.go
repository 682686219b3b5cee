// Package resy is a small client for the Resy reservation API: venue
// lookup, the availability calendar and slot search.
package resy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.resy.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36 Edg/137.0.0.0"
)

// Error is returned for upstream failures. StatusCode is 0 for transport errors.
type Error struct {
	Message    string
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status=%d)", e.Message, e.StatusCode)
	}
	return e.Message
}

type Options struct {
	BaseURL     string
	APIKey      string
	UserAgent   string
	Timeout     time.Duration // per HTTP request
	MaxRetries  int           // total attempts for retryable failures
	BackoffBase time.Duration
	RPS         float64 // client-side request pacing; <= 0 disables it
	Burst       int
}

type Client struct {
	hc      *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	opts    Options
	jitter  func() time.Duration
}

func New(opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase < 0 {
		opts.BackoffBase = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		hc:     &http.Client{Timeout: opts.Timeout},
		logger: logger,
		opts:   opts,
		jitter: func() time.Duration { return time.Duration(rand.Int63n(int64(300 * time.Millisecond))) },
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return c
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do performs the request with retry on 429/5xx and transport errors and
// decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", path, err)
		}
		body = b
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &Error{Message: "Network error", Detail: err.Error()}
			}
		}

		status, respBody, err := c.send(ctx, method, path, query, body)
		switch {
		case err != nil:
			lastErr = &Error{Message: "Network error", Detail: err.Error()}
		case status >= 400:
			uerr := &Error{Message: fmt.Sprintf("Upstream error %d", status), StatusCode: status, Detail: string(respBody)}
			if !retryable(status) {
				return uerr
			}
			lastErr = uerr
		default:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return &Error{Message: "Malformed response", StatusCode: status, Detail: err.Error()}
			}
			return nil
		}

		if ctx.Err() != nil || attempt == c.opts.MaxRetries {
			break
		}
		wait := c.opts.BackoffBase*time.Duration(1<<(attempt-1)) + c.jitter()
		c.logger.Debug("resy_retry",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return &Error{Message: "Network error", Detail: ctx.Err().Error()}
		case <-time.After(wait):
		}
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (int, []byte, error) {
	u := c.opts.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("user-agent", c.opts.UserAgent)
	req.Header.Set("authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, c.opts.APIKey))
	req.Header.Set("origin", "https://resy.com")
	req.Header.Set("referer", "https://resy.com/")
	req.Header.Set("x-origin", "https://resy.com")
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

// IsUpstream reports whether err came from the Resy API or the network path to it.
func IsUpstream(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
