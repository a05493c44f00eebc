// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pushrelay/internal/config"
	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
)

const maxErrorBody = 4096

// statusError marks a retryable HTTP status so the breaker counts it as a
// failure.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("server returned %d", e.code)
	}
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

// Client sends JSON requests to the marketing server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[int]
}

// NewClient builds a client from the server section of the configuration.
func NewClient(cfg *config.ServerConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.ResourceToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breaker: newBreaker(BreakerSettings{
			Name:         "server",
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
			OpenTimeout:  cfg.BreakerOpenTimeout,
			Interval:     cfg.BreakerInterval,
		}),
	}
}

// Send implements Sender.
func (c *Client) Send(ctx context.Context, req *Request) Result {
	start := time.Now()
	res := c.send(ctx, req)
	res.Duration = time.Since(start)

	metrics.RecordSend(string(req.Channel), res.Outcome.String(), res.Duration)
	logging.Debug().
		Str("channel", string(req.Channel)).
		Str("record_id", req.RecordID).
		Str("path", req.Path).
		Str("outcome", res.Outcome.String()).
		Int("status", res.StatusCode).
		Dur("duration", res.Duration).
		Msg("request sent")
	return res
}

func (c *Client) send(ctx context.Context, req *Request) Result {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return Result{Outcome: OutcomeTerminal, Err: fmt.Errorf("encode request: %w", err)}
	}

	// A request that cannot be built never will be; it is not a server
	// failure and stays out of the breaker.
	httpReq, err := c.newRequest(ctx, req.Path, body)
	if err != nil {
		return Result{Outcome: OutcomeTerminal, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Outcome: OutcomeRetryable, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	code, err := c.breaker.Execute(func() (int, error) {
		return c.do(httpReq)
	})

	var se *statusError
	switch {
	case err == nil:
		return Result{Outcome: ClassifyStatus(code), StatusCode: code, Err: terminalError(code)}
	case errors.As(err, &se):
		return Result{Outcome: OutcomeRetryable, StatusCode: se.code, Err: err}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Result{Outcome: OutcomeRetryable, Err: fmt.Errorf("circuit breaker: %w", err)}
	default:
		return Result{Outcome: OutcomeRetryable, Err: err}
	}
}

func (c *Client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "PushRelay/1.0")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	return httpReq, nil
}

// do performs the HTTP exchange. Retryable statuses come back as a
// *statusError, everything else as a plain status code.
func (c *Client) do(httpReq *http.Request) (int, error) {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if ClassifyStatus(resp.StatusCode) == OutcomeRetryable {
		return resp.StatusCode, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	return resp.StatusCode, nil
}

func terminalError(code int) error {
	if ClassifyStatus(code) != OutcomeTerminal {
		return nil
	}
	return fmt.Errorf("server rejected request with %d", code)
}

// BreakerState returns the breaker state for status reporting.
func (c *Client) BreakerState() string {
	return stateToString(c.breaker.State())
}
