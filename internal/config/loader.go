package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".deskpilot"
	defaultConfigName = "config.yaml"

	// EnvConfigPath points at a config file.
	EnvConfigPath = "DESKPILOT_CONFIG"
)

// apiKeyEnv lists the variables consulted for the API key, first match wins.
var apiKeyEnv = []string{"ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN", "OPENROUTER_API_KEY"}

// DefaultPath returns ~/.deskpilot/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return defaultConfigName
	}
	return filepath.Join(home, defaultConfigDir, defaultConfigName)
}

// ResolvePath picks the config file: the explicit path, then
// $DESKPILOT_CONFIG, then the default location. The boolean is false when no
// file should be read.
func ResolvePath(explicit string) (string, bool) {
	if strings.TrimSpace(explicit) != "" {
		return expandUserPath(explicit), true
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return expandUserPath(env), true
	}
	path := DefaultPath()
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return path, false
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return path
}

// Load reads path over the defaults. Environment references in the file are
// expanded and unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if strings.TrimSpace(expanded) == "" {
		return cfg, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return cfg, fmt.Errorf("parse config %s: expected single document", path)
	}
	return cfg, nil
}

// Resolve builds the configuration from defaults, the config file and the
// environment, in increasing precedence. A .env file in the working
// directory is loaded first without overriding variables already set.
// Command line flags are applied by the caller afterwards.
func Resolve(explicitPath string) (Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, "", fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	path, ok := ResolvePath(explicitPath)
	if ok {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, path, err
		}
		cfg = loaded
	} else {
		path = ""
	}
	return ApplyEnv(cfg, os.Getenv), path, nil
}

// ApplyEnv overlays the recognised environment variables on cfg.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	for _, name := range apiKeyEnv {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			cfg.APIKey = v
			break
		}
	}
	if v := strings.TrimSpace(getenv("ANTHROPIC_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(getenv("DESKPILOT_MODEL")); v != "" {
		cfg.Model = v
	}
	if v := strings.TrimSpace(getenv("DESKPILOT_PROVIDER")); v != "" {
		cfg.Provider = strings.ToLower(v)
	}
	return cfg
}
