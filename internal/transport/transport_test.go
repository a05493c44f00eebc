// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pushrelay/internal/config"
	"github.com/tomtom215/pushrelay/internal/models"
)

func testServerConfig(baseURL string) *config.ServerConfig {
	return &config.ServerConfig{
		BaseURL:             baseURL,
		ResourceToken:       "rt-test",
		Timeout:             2 * time.Second,
		RateLimit:           1000,
		RateBurst:           100,
		BreakerMinRequests:  100,
		BreakerFailureRatio: 1,
		BreakerOpenTimeout:  time.Minute,
		BreakerInterval:     time.Minute,
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want Outcome
	}{
		{200, OutcomeSuccess},
		{201, OutcomeSuccess},
		{204, OutcomeSuccess},
		{400, OutcomeTerminal},
		{401, OutcomeTerminal},
		{404, OutcomeTerminal},
		{409, OutcomeTerminal},
		{422, OutcomeTerminal},
		{429, OutcomeRetryable},
		{500, OutcomeRetryable},
		{502, OutcomeRetryable},
		{503, OutcomeRetryable},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.code); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeSuccess.String() != "success" || OutcomeRetryable.String() != "retryable" || OutcomeTerminal.String() != "terminal" {
		t.Error("unexpected outcome names")
	}
	if Outcome(9).String() != "outcome(9)" {
		t.Errorf("unknown outcome = %q", Outcome(9).String())
	}
}

func TestClient_SendsJSONWithBearer(t *testing.T) {
	var gotPath, gotAuth, gotType string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(testServerConfig(server.URL + "/api/v1.1/"))
	res := c.Send(context.Background(), &Request{
		Channel:  models.ChannelPushEvent,
		RecordID: "r1",
		Path:     PathPushEvent + models.PushEventOpen,
		Body:     map[string]string{"uid": "push-1"},
	})

	if res.Outcome != OutcomeSuccess || res.StatusCode != 200 || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if gotPath != "/api/v1.1/event/push/open" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer rt-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody["uid"] != "push-1" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Outcome
	}{
		{"ok", http.StatusOK, OutcomeSuccess},
		{"bad request", http.StatusBadRequest, OutcomeTerminal},
		{"throttled", http.StatusTooManyRequests, OutcomeRetryable},
		{"unavailable", http.StatusServiceUnavailable, OutcomeRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"x"}`))
			}))
			defer server.Close()

			res := NewClient(testServerConfig(server.URL)).Send(context.Background(), &Request{
				Channel: models.ChannelSubscribe,
				Path:    PathSubscribe,
				Body:    struct{}{},
			})
			if res.Outcome != tt.want {
				t.Errorf("outcome = %v, want %v", res.Outcome, tt.want)
			}
			if res.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", res.StatusCode, tt.status)
			}
			if tt.want != OutcomeSuccess && res.Err == nil {
				t.Error("non-success result should carry an error")
			}
		})
	}
}

func TestClient_NetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	res := NewClient(testServerConfig(url)).Send(context.Background(), &Request{
		Channel: models.ChannelMobileEvent,
		Path:    PathMobileEvent,
		Body:    struct{}{},
	})
	if res.Outcome != OutcomeRetryable {
		t.Fatalf("outcome = %v, want retryable", res.Outcome)
	}
	if res.Err == nil || res.StatusCode != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testServerConfig(server.URL)
	cfg.BreakerMinRequests = 3
	cfg.BreakerFailureRatio = 0.5
	c := NewClient(cfg)

	req := &Request{Channel: models.ChannelSubscribe, Path: PathSubscribe, Body: struct{}{}}
	for i := 0; i < 3; i++ {
		if res := c.Send(context.Background(), req); res.Outcome != OutcomeRetryable {
			t.Fatalf("call %d outcome = %v", i, res.Outcome)
		}
	}
	if c.BreakerState() != "open" {
		t.Fatalf("BreakerState() = %q, want open", c.BreakerState())
	}

	res := c.Send(context.Background(), req)
	if res.Outcome != OutcomeRetryable {
		t.Fatalf("open breaker outcome = %v, want retryable", res.Outcome)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3 (breaker should short-circuit)", calls.Load())
	}
}

func TestClient_TerminalDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	cfg := testServerConfig(server.URL)
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	c := NewClient(cfg)

	req := &Request{Channel: models.ChannelSubscribe, Path: PathSubscribe, Body: struct{}{}}
	for i := 0; i < 5; i++ {
		if res := c.Send(context.Background(), req); res.Outcome != OutcomeTerminal {
			t.Fatalf("outcome = %v, want terminal", res.Outcome)
		}
	}
	if c.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %q, want closed", c.BreakerState())
	}
}

func TestClient_EncodeFailureIsTerminal(t *testing.T) {
	c := NewClient(testServerConfig("http://127.0.0.1:1"))
	res := c.Send(context.Background(), &Request{
		Channel: models.ChannelMobileEvent,
		Path:    PathMobileEvent,
		Body:    map[string]interface{}{"bad": make(chan int)},
	})
	if res.Outcome != OutcomeTerminal {
		t.Fatalf("outcome = %v, want terminal", res.Outcome)
	}
}

func TestClient_RequestBuildFailureIsTerminal(t *testing.T) {
	cfg := testServerConfig("http://example.com/\x7f")
	cfg.BreakerMinRequests = 1
	cfg.BreakerFailureRatio = 0.5
	c := NewClient(cfg)

	req := &Request{Channel: models.ChannelSubscribe, Path: PathSubscribe, Body: struct{}{}}
	for i := 0; i < 3; i++ {
		res := c.Send(context.Background(), req)
		if res.Outcome != OutcomeTerminal {
			t.Fatalf("outcome = %v, want terminal", res.Outcome)
		}
		if res.Err == nil {
			t.Fatal("expected build error")
		}
	}
	if c.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %q, want closed", c.BreakerState())
	}
}

func TestResultMessage(t *testing.T) {
	if got := (Result{Err: errors.New("boom")}).Message(); got != "boom" {
		t.Errorf("Message() = %q", got)
	}
	if got := (Result{StatusCode: 503}).Message(); got != "HTTP 503" {
		t.Errorf("Message() = %q", got)
	}
	if got := (Result{}).Message(); got != "success" {
		t.Errorf("Message() = %q", got)
	}
}

func TestSenderFunc(t *testing.T) {
	var s Sender = SenderFunc(func(context.Context, *Request) Result {
		return Result{Outcome: OutcomeTerminal}
	})
	if s.Send(context.Background(), &Request{}).Outcome != OutcomeTerminal {
		t.Error("SenderFunc did not delegate")
	}
}
