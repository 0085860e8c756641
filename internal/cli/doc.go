// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the chatstream command line.
//
// # Commands
//
//   - ask: one turn, answer streamed to stdout
//   - chat: interactive session with line editing and input history
//   - visitor show|reset: the persisted visitor identifier
//   - history list|show|delete: archived transcripts
//   - serve: the local development backend
//   - config show|init|path: the TOML configuration
//
// Every command loads the config file named by --config (default
// ~/.chatstream/config.toml) before it runs. Output is plain when stdout is
// not a terminal or NO_COLOR is set.
package cli
