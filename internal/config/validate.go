// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// minFrameBytes keeps MaxFrameBytes large enough for any sentinel frame.
const minFrameBytes = 1024

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"console": true, "json": true}
	validDrivers = map[string]bool{"sqlite": true, "memory": true}
)

// Validate validates the configuration and returns ValidateErrors when
// anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Endpoint
	if u, err := url.Parse(c.Endpoint.URL); err != nil || u.Host == "" {
		add("endpoint.url", "invalid URL '%s'", c.Endpoint.URL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("endpoint.url", "scheme must be http or https, got '%s'", u.Scheme)
	}

	// Stream
	if c.Stream.OpenTimeoutSecs < 0 {
		add("stream.open_timeout_secs", "must be >= 0, got %d", c.Stream.OpenTimeoutSecs)
	}
	if c.Stream.IdleTimeoutSecs < 0 {
		add("stream.idle_timeout_secs", "must be >= 0, got %d", c.Stream.IdleTimeoutSecs)
	}
	if c.Stream.MaxFrameBytes < minFrameBytes {
		add("stream.max_frame_bytes", "must be >= %d, got %d", minFrameBytes, c.Stream.MaxFrameBytes)
	}

	// Storage
	if !validDrivers[c.Storage.Driver] {
		add("storage.driver", "invalid driver '%s', must be one of: sqlite, memory", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		add("storage.path", "required for the sqlite driver")
	}

	// Logging
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if !validFormats[c.Logging.Format] {
		add("logging.format", "invalid format '%s', must be one of: console, json", c.Logging.Format)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		add("logging", "rotation limits must be >= 0")
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics.addr", "required when metrics are enabled")
	}

	// Server
	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		add("server.path", "must start with '/', got '%s'", c.Server.Path)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must be >= 0, got %g", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		add("server.burst", "must be >= 1 when rate limiting, got %d", c.Server.Burst)
	}
	if c.Server.TokenDelayMs < 0 {
		add("server.token_delay_ms", "must be >= 0, got %d", c.Server.TokenDelayMs)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that must not stay empty.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Locale == "" {
		c.Locale = d.Locale
	}
	if c.Endpoint.URL == "" {
		c.Endpoint.URL = d.Endpoint.URL
	}
	if c.Endpoint.UserAgent == "" {
		c.Endpoint.UserAgent = d.Endpoint.UserAgent
	}
	if c.Stream.MaxFrameBytes == 0 {
		c.Stream.MaxFrameBytes = d.Stream.MaxFrameBytes
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = d.Metrics.Addr
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.Path == "" {
		c.Server.Path = d.Server.Path
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}
