package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures the logger.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "text" (default) or "json".
	Format string

	// Output receives log records. Defaults to os.Stderr so stdout stays free
	// for run progress.
	Output io.Writer

	// File, when set, also writes records to a size-rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	AddSource bool

	// RedactPatterns are extra regexes whose matches are masked.
	RedactPatterns []string

	// Secrets are literal values (API keys) masked wherever they appear.
	Secrets []string
}

// DefaultRedactPatterns covers common credential shapes.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`sk-ant-[a-zA-Z0-9_-]{20,}`,
	`sk-or-v1-[a-f0-9]{32,}`,
	`sk-[a-zA-Z0-9]{48,}`,
}

const redacted = "[REDACTED]"

// NewLogger builds a slog logger that masks secrets in messages and attribute
// values. The returned closer flushes the rotating file, if any.
func NewLogger(config LogConfig) (*slog.Logger, io.Closer) {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	out := config.Output
	var closer io.Closer = nopCloser{}
	if config.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    defaultInt(config.MaxSizeMB, 20),
			MaxBackups: defaultInt(config.MaxBackups, 3),
			MaxAge:     defaultInt(config.MaxAgeDays, 14),
			Compress:   true,
		}
		out = io.MultiWriter(config.Output, rotator)
		closer = rotator
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
	}
	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(NewRedactingHandler(handler, config.Secrets, config.RedactPatterns...)), closer
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactingHandler masks secrets before records reach the wrapped handler.
type RedactingHandler struct {
	next    slog.Handler
	secrets []string
	redacts []*regexp.Regexp
}

// NewRedactingHandler wraps next. Invalid patterns are skipped.
func NewRedactingHandler(next slog.Handler, secrets []string, patterns ...string) *RedactingHandler {
	h := &RedactingHandler{next: next}
	for _, s := range secrets {
		// short values would mask unrelated text
		if len(s) >= 8 {
			h.secrets = append(h.secrets, s)
		}
	}
	for _, pattern := range append(append([]string(nil), DefaultRedactPatterns...), patterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			h.redacts = append(h.redacts, re)
		}
	}
	return h
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(clean), secrets: h.secrets, redacts: h.redacts}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), secrets: h.secrets, redacts: h.redacts}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, ga := range group {
			clean[i] = h.redactAttr(ga)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.redactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (h *RedactingHandler) redactString(s string) string {
	for _, secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	for _, re := range h.redacts {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func defaultInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
