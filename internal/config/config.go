// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatstream configuration.
type Config struct {
	// Locale selects the language of failure messages (BCP 47 tag).
	Locale string `toml:"locale" json:"locale"`

	Endpoint EndpointConfig `toml:"endpoint" json:"endpoint"`
	Request  RequestConfig  `toml:"request" json:"request"`
	Stream   StreamConfig   `toml:"stream" json:"stream"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Logging  LoggingConfig  `toml:"logging" json:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" json:"metrics"`
	Server   ServerConfig   `toml:"server" json:"server"`
}

// EndpointConfig describes the completion endpoint.
type EndpointConfig struct {
	// URL is the streaming completion endpoint that receives the POST.
	URL string `toml:"url" json:"url"`
	// Channel is sent as "channel" when non-empty.
	Channel string `toml:"channel" json:"channel"`
	// UserAgent is sent on every request.
	UserAgent string `toml:"user_agent" json:"user_agent"`
}

// RequestConfig holds the caller parameters merged into every request body.
type RequestConfig struct {
	// ConversationID is required by the backend. When empty the CLI
	// generates one per session.
	ConversationID string `toml:"conversation_id" json:"conversation_id"`
	Mode           string `toml:"mode" json:"mode"`
	Model          string `toml:"model" json:"model"`
	// Params are extra free-form fields for the request body.
	Params map[string]any `toml:"params,omitempty" json:"params,omitempty"`
}

// StreamConfig bounds a single streaming turn.
type StreamConfig struct {
	// OpenTimeoutSecs bounds the wait for response headers (0 = 30s).
	OpenTimeoutSecs int `toml:"open_timeout_secs" json:"open_timeout_secs"`
	// IdleTimeoutSecs bounds the gap between two frames (0 = 60s).
	IdleTimeoutSecs int `toml:"idle_timeout_secs" json:"idle_timeout_secs"`
	// MaxFrameBytes caps a single event; frames carry the whole answer so
	// far, so this is also the longest answer accepted.
	MaxFrameBytes int `toml:"max_frame_bytes" json:"max_frame_bytes"`
}

// OpenTimeout returns the open timeout as a duration.
func (s StreamConfig) OpenTimeout() time.Duration {
	return time.Duration(s.OpenTimeoutSecs) * time.Second
}

// IdleTimeout returns the idle timeout as a duration.
func (s StreamConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSecs) * time.Second
}

// StorageConfig selects where local state such as the visitor id lives.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `toml:"driver" json:"driver"`
	// Path is the SQLite database file.
	Path string `toml:"path" json:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json".
	Format string `toml:"format" json:"format"`
	// File enables rotating file output when set; stderr otherwise.
	File       string `toml:"file" json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress"`
}

// MetricsConfig controls the Prometheus endpoint of the CLI.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Addr    string `toml:"addr" json:"addr"`
}

// ServerConfig configures the development backend.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
	// Path is the completion route; it should match the path of Endpoint.URL.
	Path string `toml:"path" json:"path"`
	// RateLimit is requests per second per client (0 = unlimited).
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	Burst     int     `toml:"burst" json:"burst"`
	// TokenDelayMs is the pause between streamed words.
	TokenDelayMs int `toml:"token_delay_ms" json:"token_delay_ms"`
}

// TokenDelay returns the pause between streamed words.
func (s ServerConfig) TokenDelay() time.Duration {
	return time.Duration(s.TokenDelayMs) * time.Millisecond
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

const (
	// Version is the client version reported in the User-Agent.
	Version = "0.3.0"

	defaultServerAddr = "127.0.0.1:8780"
	defaultServerPath = "/api/v1/chat/completions"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	stateDir, err := ConfigDir()
	if err != nil {
		stateDir = os.TempDir()
	}

	return &Config{
		Locale: "en",

		Endpoint: EndpointConfig{
			URL:       "http://" + defaultServerAddr + defaultServerPath,
			UserAgent: "chatstream/" + Version,
		},

		Request: RequestConfig{
			Mode: "chat",
		},

		Stream: StreamConfig{
			OpenTimeoutSecs: 30,
			IdleTimeoutSecs: 60,
			MaxFrameBytes:   1 << 20,
		},

		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(stateDir, "state.db"),
		},

		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},

		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},

		Server: ServerConfig{
			Addr:         defaultServerAddr,
			Path:         defaultServerPath,
			RateLimit:    5,
			Burst:        10,
			TokenDelayMs: 40,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatstream configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatstream"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads ~/.chatstream/config.toml, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		return cfg, cfg.Validate()
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path. A missing file yields the
// defaults; a malformed one is an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes the TOML file at path over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %v\n", path, undecoded)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# chatstream configuration file\n")
	buf.WriteString("# Generated by chatstream - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	if c.Request.Params != nil {
		cp.Request.Params = make(map[string]any, len(c.Request.Params))
		for k, v := range c.Request.Params {
			cp.Request.Params[k] = v
		}
	}
	return &cp
}
