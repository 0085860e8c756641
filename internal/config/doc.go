// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatstream.
//
// Configuration is TOML, with built-in defaults, environment variable
// overrides and validation. A running REPL can follow edits to the file
// with Watch.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - EndpointConfig: Completion endpoint URL and channel
//   - RequestConfig: Caller parameters sent with every turn
//   - StreamConfig: Open and idle timeouts, frame size limit
//   - LoggingConfig: Level, format and rotation of the log
//   - ServerConfig: Development backend settings
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CHATSTREAM_*)
//   - ~/.chatstream/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	idle := cfg.Stream.IdleTimeout()
package config
