// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a local development backend that speaks the
// chatstream streaming protocol.
//
// Endpoints:
//   - POST <path>  - Streaming completion (default /api/v1/chat/completions)
//   - GET  /health - Health check
//   - GET  /metrics - Prometheus metrics
//
// The completion route requires conversationId, query and streaming: true.
// It answers with cumulative percent-encoded frames, one per word, followed
// by [DONE]. Queries starting with a directive exercise the failure paths:
//
//	/status <code>   respond with that HTTP status instead of a stream
//	/error <message> stream a partial answer, then [ERROR]<message>
//	/drop            stream a partial answer, then close without [DONE]
//
// Requests pass through recovery, security headers, request logging and a
// per-client token bucket rate limiter.
package server
