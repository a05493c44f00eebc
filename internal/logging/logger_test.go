// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pushrelay/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if cfg.Caller {
		t.Error("expected default caller to be false")
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Timestamp: true, Output: &buf})

	Info().Msg("agent starting")

	out := buf.String()
	if !strings.Contains(out, "agent starting") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("expected level field in output, got: %s", out)
	}
}

func TestInit_Console(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "console", Output: &buf})

	Info().Msg("console line")

	if strings.Contains(buf.String(), `"level"`) {
		t.Errorf("expected console format, got JSON: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"disabled", zerolog.Disabled},
		{"DEBUG", zerolog.DebugLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelHelpers(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	tests := []struct {
		name  string
		emit  func()
		level string
	}{
		{"trace", func() { Trace().Msg("m") }, "trace"},
		{"debug", func() { Debug().Msg("m") }, "debug"},
		{"info", func() { Info().Msg("m") }, "info"},
		{"warn", func() { Warn().Msg("m") }, "warn"},
		{"error", func() { Error().Msg("m") }, "error"},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.emit()
		if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
			t.Errorf("%s: unexpected output %s", tt.name, buf.String())
		}
	}
}

func TestForChannel(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	l := ForChannel("push_event")
	l.Info().Str("record_id", "r1").Msg("record sent")

	out := buf.String()
	for _, want := range []string{`"component":"engine"`, `"channel":"push_event"`, `"record_id":"r1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestForComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	l := ForComponent("store")
	l.Info().Msg("opened")

	if !strings.Contains(buf.String(), `"component":"store"`) {
		t.Errorf("expected component field, got %s", buf.String())
	}
}

func TestSetLevelString(t *testing.T) {
	original := GetLevel()
	defer zerolog.SetGlobalLevel(original)

	SetLevelString("debug")
	if GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected DebugLevel, got %v", GetLevel())
	}
	SetLevelString("error")
	if GetLevel() != zerolog.ErrorLevel {
		t.Errorf("expected ErrorLevel, got %v", GetLevel())
	}
}

func TestErr(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	Err(errors.New("disk full")).Msg("insert failed")

	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("expected error in output: %s", buf.String())
	}
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger(&buf)
	l.Info().Str("key", "value").Msg("captured")

	if !strings.Contains(buf.String(), `"key":"value"`) {
		t.Errorf("expected field in output: %s", buf.String())
	}
}

func TestConfigFrom(t *testing.T) {
	c := ConfigFrom(&config.LoggingConfig{Level: "debug", Format: "console", Caller: true})
	if c.Level != "debug" || c.Format != "console" || !c.Caller {
		t.Errorf("unexpected config: %+v", c)
	}
	if !c.Timestamp || c.Output == nil {
		t.Errorf("expected timestamp and output defaults, got %+v", c)
	}

	c = ConfigFrom(&config.LoggingConfig{})
	if c.Level != "info" || c.Format != "json" {
		t.Errorf("expected defaults for empty config, got %+v", c)
	}

	if ConfigFrom(nil).Level != "info" {
		t.Error("expected defaults for nil config")
	}
}

func TestInit_ServiceField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	Info().Msg("hello")

	if !strings.Contains(buf.String(), `"service":"pushrelay"`) {
		t.Errorf("expected service field in output: %s", buf.String())
	}
}
