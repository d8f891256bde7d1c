package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func unsetenv(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Scale != 0.75 || cfg.JPEGQuality != 60 || cfg.MaxIterations != 30 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Transport.MaxRetries != 3 || cfg.Transport.RetryDelay != 5*time.Second {
		t.Errorf("unexpected transport defaults: %+v", cfg.Transport)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	t.Setenv("DESKPILOT_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
provider: anthropic
api_key: ${DESKPILOT_TEST_KEY}
scale: 0.5
transport:
  retry_delay: 2s
dispatch:
  settle_delay: 250ms
debug:
  save_frames: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider != ProviderAnthropic || cfg.APIKey != "sk-from-env" || cfg.Scale != 0.5 {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.Transport.RetryDelay != 2*time.Second || cfg.Transport.MaxRetries != 3 {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	if cfg.Dispatch.SettleDelay != 250*time.Millisecond || cfg.Dispatch.MaxWait != 60*time.Second {
		t.Errorf("Dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Debug.SaveFrames || cfg.Debug.Dir != "screenshots" {
		t.Errorf("Debug = %+v", cfg.Debug)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
scale: 0.75
transport:
  retries: 5
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "scale: 0.5\n---\nscale: 0.6\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "single document") {
		t.Fatalf("Load() error = %v, want single document error", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %q", cfg.Model)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
		wantURL string
	}{
		{
			name:    "anthropic key wins",
			env:     map[string]string{"ANTHROPIC_API_KEY": "a", "ANTHROPIC_AUTH_TOKEN": "b", "OPENROUTER_API_KEY": "c"},
			wantKey: "a",
		},
		{
			name:    "auth token next",
			env:     map[string]string{"ANTHROPIC_AUTH_TOKEN": "b", "OPENROUTER_API_KEY": "c"},
			wantKey: "b",
		},
		{
			name:    "openrouter last",
			env:     map[string]string{"OPENROUTER_API_KEY": "c", "ANTHROPIC_BASE_URL": "http://localhost:9000"},
			wantKey: "c",
			wantURL: "http://localhost:9000",
		},
		{
			name:    "file value kept",
			env:     map[string]string{"ANTHROPIC_API_KEY": "  "},
			wantKey: "from-file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := Default()
			base.APIKey = "from-file"
			cfg := ApplyEnv(base, func(k string) string { return tt.env[k] })
			if cfg.APIKey != tt.wantKey {
				t.Errorf("APIKey = %q, want %q", cfg.APIKey, tt.wantKey)
			}
			if cfg.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, tt.wantURL)
			}
		})
	}

	cfg := ApplyEnv(Default(), func(k string) string {
		return map[string]string{"DESKPILOT_MODEL": "gpt-4o", "DESKPILOT_PROVIDER": "OpenAI"}[k]
	})
	if cfg.Model != "gpt-4o" || cfg.Provider != ProviderOpenAI {
		t.Errorf("ApplyEnv() = %+v", cfg)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	// godotenv never overrides a variable that exists, even when empty
	unsetenv(t, "ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN", "OPENROUTER_API_KEY", "DESKPILOT_PROVIDER", "ANTHROPIC_BASE_URL")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENROUTER_API_KEY=sk-or-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "model: file-model\nmax_iterations: 5\n")
	t.Setenv(EnvConfigPath, path)
	t.Setenv("DESKPILOT_MODEL", "env-model")

	cfg, used, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if used != path {
		t.Errorf("path = %q, want %q", used, path)
	}
	if cfg.APIKey != "sk-or-dotenv" {
		t.Errorf("APIKey = %q, want value from .env", cfg.APIKey)
	}
	if cfg.Model != "env-model" || cfg.MaxIterations != 5 {
		t.Errorf("Resolve() = %+v", cfg)
	}
}

func TestResolveWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv(EnvConfigPath, "")

	cfg, used, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if used != "" || cfg.MaxIterations != 30 {
		t.Errorf("Resolve() = %q %+v", used, cfg)
	}

	if _, _, err := Resolve(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Resolve(explicit missing) error = nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"provider", func(c *Config) { c.Provider = "bedrock" }, "provider"},
		{"scale zero", func(c *Config) { c.Scale = 0 }, "scale"},
		{"scale above one", func(c *Config) { c.Scale = 1.5 }, "scale"},
		{"quality", func(c *Config) { c.JPEGQuality = 101 }, "jpeg_quality"},
		{"iterations", func(c *Config) { c.MaxIterations = 0 }, "max_iterations"},
		{"retries", func(c *Config) { c.Transport.MaxRetries = 0 }, "max_retries"},
		{"debug dir", func(c *Config) { c.Debug.Dir = " " }, "debug.dir"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"wait", func(c *Config) { c.Dispatch.MaxWait = 0 }, "max_wait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}

	cfg := Default()
	cfg.Debug.SaveFrames = false
	cfg.Debug.Quality = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("debug quality checked with frames off: %v", err)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	props, _ := schema["properties"].(map[string]any)
	for _, key := range []string{"provider", "base_url", "scale", "transport", "safety"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing %q", key)
		}
	}
	transport, _ := props["transport"].(map[string]any)
	tprops, _ := transport["properties"].(map[string]any)
	delay, _ := tprops["retry_delay"].(map[string]any)
	if delay["type"] != "string" {
		t.Errorf("retry_delay schema = %v, want string duration", delay)
	}
}
