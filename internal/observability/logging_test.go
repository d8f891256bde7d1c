package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerFormats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		want   string
	}{
		{name: "json", format: "json", want: `"msg":"hello"`},
		{name: "text", format: "text", want: "msg=hello"},
		{name: "default is text", format: "", want: "msg=hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, closer := NewLogger(LogConfig{Format: tt.format, Output: &buf})
			defer closer.Close()

			logger.Info("hello", "n", 1)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want substring %q", buf.String(), tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(LogConfig{Level: "warn", Output: &buf})
	logger.Info("quiet")
	logger.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRedaction(t *testing.T) {
	const key = "sk-or-v1-0123456789abcdef0123456789abcdef0123456789abcdef"
	const literal = "hunter2hunter2"

	var buf bytes.Buffer
	logger, _ := NewLogger(LogConfig{Output: &buf, Secrets: []string{literal, "short"}})

	logger.Info("using key "+key,
		"header", "Bearer abcdefghijklmnopqrstuvwxyz",
		"err", errors.New("auth failed for "+literal),
		slog.Group("req", slog.String("token", literal)),
	)
	logger.With("preset", literal).Info("with attrs")

	out := buf.String()
	for _, secret := range []string{key, literal, "abcdefghijklmnopqrstuvwxyz"} {
		if strings.Contains(out, secret) {
			t.Errorf("output leaks %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, redacted) {
		t.Errorf("output has no redaction marker: %s", out)
	}
}

func TestShortSecretsAreIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(LogConfig{Output: &buf, Secrets: []string{"a"}})
	logger.Info("a cat sat")
	if !strings.Contains(buf.String(), "a cat sat") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLogFileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskpilot.log")
	var buf bytes.Buffer
	logger, closer := NewLogger(LogConfig{Output: &buf, File: path})
	logger.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stream output = %q", buf.String())
	}
}
