// Package config holds the deskpilot configuration: defaults, the optional
// YAML file, environment overrides and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultModel is the model requested when none is configured.
const DefaultModel = "anthropic/claude-sonnet-4.6"

// Config is the complete, immutable run configuration.
type Config struct {
	// Provider selects the wire protocol: "openai" (any OpenAI-compatible
	// endpoint, OpenRouter by default) or "anthropic".
	Provider string `yaml:"provider" jsonschema:"enum=openai,enum=anthropic"`

	// BaseURL is the API root without /v1. Empty uses the provider default.
	BaseURL string `yaml:"base_url"`

	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	MaxTokens int `yaml:"max_tokens"`

	// Scale shrinks screenshots before they are sent; coordinates are
	// translated back by the same factor.
	Scale       float64 `yaml:"scale"`
	JPEGQuality int     `yaml:"jpeg_quality"`

	MaxIterations int `yaml:"max_iterations"`

	// Confirm asks on the terminal before every action except screenshots.
	Confirm bool `yaml:"confirm"`

	Transport     TransportConfig     `yaml:"transport"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	Debug         DebugConfig         `yaml:"debug"`
	Safety        SafetyConfig        `yaml:"safety"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// TransportConfig tunes model requests.
type TransportConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// MaxRetries is the total number of attempts per request.
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	RequestsPerMinute int `yaml:"requests_per_minute"`

	// AppName and Referer are sent as X-Title and HTTP-Referer.
	AppName string `yaml:"app_name"`
	Referer string `yaml:"referer"`
}

// DispatchConfig tunes how actions are performed.
type DispatchConfig struct {
	SettleDelay      time.Duration `yaml:"settle_delay"`
	MoveDuration     time.Duration `yaml:"move_duration"`
	DragHold         time.Duration `yaml:"drag_hold"`
	DragDuration     time.Duration `yaml:"drag_duration"`
	MaxWait          time.Duration `yaml:"max_wait"`
	PasteKeys        string        `yaml:"paste_keys"`
	RestoreClipboard bool          `yaml:"restore_clipboard"`
}

// DebugConfig controls the on-disk copy of every observation.
type DebugConfig struct {
	SaveFrames bool   `yaml:"save_frames"`
	Dir        string `yaml:"dir"`
	Quality    int    `yaml:"quality"`
}

// SafetyConfig controls the pointer-corner abort.
type SafetyConfig struct {
	// CornerMargin is the size in pixels of the guarded top-left square.
	CornerMargin int `yaml:"corner_margin"`

	Disabled      bool          `yaml:"disabled"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format" jsonschema:"enum=text,enum=json"`
	File   string `yaml:"file"`
}

// ObservabilityConfig enables metrics and tracing.
type ObservabilityConfig struct {
	MetricsAddr  string  `yaml:"metrics_addr"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	OTLPInsecure bool    `yaml:"otlp_insecure"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:      ProviderOpenAI,
		Model:         DefaultModel,
		MaxTokens:     4096,
		Scale:         0.75,
		JPEGQuality:   60,
		MaxIterations: 30,
		Transport: TransportConfig{
			Timeout:        180 * time.Second,
			ConnectTimeout: 30 * time.Second,
			MaxRetries:     3,
			RetryDelay:     5 * time.Second,
			AppName:        "deskpilot",
			Referer:        "https://github.com/haasonsaas/deskpilot",
		},
		Dispatch: DispatchConfig{
			SettleDelay:  400 * time.Millisecond,
			MoveDuration: 200 * time.Millisecond,
			DragHold:     100 * time.Millisecond,
			DragDuration: 300 * time.Millisecond,
			MaxWait:      60 * time.Second,
			PasteKeys:    "ctrl+v",
		},
		Debug: DebugConfig{
			SaveFrames: true,
			Dir:        "screenshots",
			Quality:    80,
		},
		Safety: SafetyConfig{
			WatchInterval: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			SampleRate: 1.0,
		},
	}
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		add("provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		add("model is required")
	}
	if c.MaxTokens < 1 {
		add("max_tokens must be positive")
	}
	if c.Scale <= 0 || c.Scale > 1 {
		add("scale must be in (0, 1], got %v", c.Scale)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		add("jpeg_quality must be between 1 and 100")
	}
	if c.MaxIterations < 1 {
		add("max_iterations must be at least 1")
	}

	if c.Transport.Timeout <= 0 {
		add("transport.timeout must be positive")
	}
	if c.Transport.ConnectTimeout <= 0 {
		add("transport.connect_timeout must be positive")
	}
	if c.Transport.MaxRetries < 1 {
		add("transport.max_retries must be at least 1")
	}
	if c.Transport.RetryDelay < 0 {
		add("transport.retry_delay must not be negative")
	}
	if c.Transport.RequestsPerMinute < 0 {
		add("transport.requests_per_minute must not be negative")
	}

	if c.Dispatch.SettleDelay < 0 || c.Dispatch.MoveDuration < 0 || c.Dispatch.DragHold < 0 || c.Dispatch.DragDuration < 0 {
		add("dispatch delays must not be negative")
	}
	if c.Dispatch.MaxWait <= 0 {
		add("dispatch.max_wait must be positive")
	}

	if c.Debug.SaveFrames && (c.Debug.Quality < 1 || c.Debug.Quality > 100) {
		add("debug.quality must be between 1 and 100")
	}
	if c.Debug.SaveFrames && strings.TrimSpace(c.Debug.Dir) == "" {
		add("debug.dir is required when save_frames is on")
	}

	if c.Safety.CornerMargin < 0 {
		add("safety.corner_margin must not be negative")
	}
	if c.Safety.WatchInterval < 0 {
		add("safety.watch_interval must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		add("logging.format must be text or json")
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		add("observability.sample_rate must be in [0, 1]")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
