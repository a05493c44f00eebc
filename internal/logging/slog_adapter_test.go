// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newCapturingSlog(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	var buf bytes.Buffer
	return slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf))), &buf
}

func TestSlogHandler_LevelMapping(t *testing.T) {
	logger, buf := newCapturingSlog(t)

	tests := []struct {
		name  string
		log   func(msg string)
		level string
	}{
		{"debug", func(m string) { logger.Debug(m) }, `"level":"debug"`},
		{"info", func(m string) { logger.Info(m) }, `"level":"info"`},
		{"warn", func(m string) { logger.Warn(m) }, `"level":"warn"`},
		{"error", func(m string) { logger.Error(m) }, `"level":"error"`},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.log("hello " + tt.name)
		out := buf.String()
		if !strings.Contains(out, tt.level) {
			t.Errorf("%s: expected %s in %s", tt.name, tt.level, out)
		}
		if !strings.Contains(out, "hello "+tt.name) {
			t.Errorf("%s: message missing in %s", tt.name, out)
		}
	}
}

func TestSlogHandler_Attributes(t *testing.T) {
	logger, buf := newCapturingSlog(t)

	logger.Info("service restarted",
		slog.String("service", "prober"),
		slog.Int("restarts", 3),
		slog.Bool("backoff", true),
		slog.Duration("wait", 2*time.Second),
		slog.Any("err", errors.New("boom")),
	)

	out := buf.String()
	for _, want := range []string{
		`"service":"prober"`,
		`"restarts":3`,
		`"backoff":true`,
		`"err":"boom"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestSlogHandler_GroupsFlattenInOrder(t *testing.T) {
	logger, buf := newCapturingSlog(t)

	logger.WithGroup("outer").WithGroup("inner").Info("grouped", slog.String("k", "v"))
	if !strings.Contains(buf.String(), `"outer.inner.k":"v"`) {
		t.Errorf("expected nested group key, got %s", buf.String())
	}

	buf.Reset()
	logger.Info("inline", slog.Group("req", slog.String("method", "POST")))
	if !strings.Contains(buf.String(), `"req.method":"POST"`) {
		t.Errorf("expected inline group key, got %s", buf.String())
	}
}

func TestSlogHandler_WithAttrsKeepsParent(t *testing.T) {
	logger, buf := newCapturingSlog(t)

	child := logger.With(slog.String("component", "events"))
	child.Info("child")
	if !strings.Contains(buf.String(), `"component":"events"`) {
		t.Errorf("child missing attr: %s", buf.String())
	}

	buf.Reset()
	logger.Info("parent")
	if strings.Contains(buf.String(), "component") {
		t.Errorf("parent should not carry child attrs: %s", buf.String())
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	h := NewSlogHandlerWithLogger(zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled for a warn logger")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled for a warn logger")
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
		{slog.LevelError + 4, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
