// Package expo provides the HTTP client for the Expo push service.
//
// Each call posts an array of at most 100 messages. The response body is
// handed back untouched; per-ticket errors inside a 200 are not interpreted.
package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/buildingpulse/push-fanout/internal/fanout"
)

const maxResponseBytes = 1 << 20

// Client posts message batches to the Expo push endpoint.
type Client struct {
	httpClient  *http.Client
	url         string
	accessToken string
	limiter     *rate.Limiter // nil = unpaced
	logger      *slog.Logger
}

// NewClient creates an Expo client. accessToken may be empty; a
// requestsPerSecond of zero disables client-side pacing.
func NewClient(url, accessToken string, timeout time.Duration, requestsPerSecond float64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		url:         url,
		accessToken: accessToken,
		logger:      logger.With("component", "expo"),
	}
	if requestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return c
}

// Send posts one batch. Any HTTP response is returned as (status, body, nil);
// err is set only when no response was received.
func (c *Client) Send(ctx context.Context, messages []fanout.Message) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return 0, nil, fmt.Errorf("encode messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post push batch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, body, fmt.Errorf("read push response: %w", err)
	}

	c.logger.Debug("push batch posted",
		"messages", len(messages),
		"status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond))
	return resp.StatusCode, body, nil
}
