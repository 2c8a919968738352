package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/version"
)

const maxBackoff = 2 * time.Second

// Client reads JSON documents from the price and market data feeds. Only GET
// is needed, so every attempt is a fresh request and retries are always safe.
type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
	log        zerolog.Logger
}

type Option func(*Client)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(timeout time.Duration, retries int, opts ...Option) *Client {
	if retries < 0 {
		retries = 0
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  version.UserAgent(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches url and decodes the body into out. 429 and 5xx answers and
// network failures are retried; a 429 Retry-After hint replaces the backoff.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	var (
		lastErr error
		wait    time.Duration
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if wait <= 0 {
				wait = backoff(attempt)
			}
			c.log.Debug().Str("url", url).Int("attempt", attempt).Dur("backoff", wait).Err(lastErr).Msg("retrying feed request")
			select {
			case <-ctx.Done():
				return clierr.Wrap(clierr.CodeUnavailable, "feed request cancelled", ctx.Err())
			case <-time.After(wait):
			}
			wait = 0
		}

		body, retryAfter, err := c.get(ctx, url)
		if err == nil {
			return decode(body, out)
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		wait = retryAfter
	}
	return lastErr
}

func (c *Client) get(ctx context.Context, url string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, clierr.Wrap(clierr.CodeInternal, "build feed request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, mapNetError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, clierr.Wrap(clierr.CodeUnavailable, "read feed response", err)
	}
	if err := statusError(resp.StatusCode, req.URL.Path); err != nil {
		return nil, retryAfter(resp.Header.Get("Retry-After")), err
	}
	return body, 0, nil
}

func statusError(status int, path string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return clierr.New(clierr.CodeRateLimited, "feed rate limited request")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return clierr.New(clierr.CodeAuth, "feed authentication failed")
	case status == http.StatusNotFound:
		return clierr.New(clierr.CodeNotFound, fmt.Sprintf("feed endpoint not found: %s", path))
	case status >= http.StatusInternalServerError:
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("feed unavailable (status %d)", status))
	default:
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("feed returned unexpected status %d", status))
	}
}

func retryable(err error) bool {
	return clierr.HasCode(err, clierr.CodeUnavailable) || clierr.HasCode(err, clierr.CodeRateLimited)
}

func decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return clierr.New(clierr.CodeUnavailable, "feed returned empty response")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode feed JSON", err)
	}
	return nil
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "feed timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "feed request failed", err)
}

// retryAfter reads a delay-seconds Retry-After header, capped at maxBackoff.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxBackoff)
}

func backoff(attempt int) time.Duration {
	d := min(120*time.Millisecond*time.Duration(1<<uint(attempt-1)), maxBackoff)
	return d + time.Duration(rand.Intn(75))*time.Millisecond
}
