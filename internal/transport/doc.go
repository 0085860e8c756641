// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport performs one streaming HTTP POST per chat turn and
// delivers the server-sent events of the response to callbacks.
//
// The transport knows nothing about conversations or sentinels. It
// classifies the response when it opens, hands every frame to OnMessage in
// arrival order, reports a clean end of body through OnClose, and reports
// everything else through OnError. It never retries.
//
// # Open Classification
//
//   - 2xx with a text/event-stream body: the stream proceeds
//   - 402: UsageLimitError (fatal)
//   - other 4xx except 429: FatalRequestError
//   - 429, 5xx, wrong content type, network failure: RetriableError
//
// # Key Types
//
//   - Client: Streaming HTTP client with open and idle timeouts
//   - Callbacks: OnOpen, OnMessage, OnClose, OnError
//   - Reader: Server-sent event parser
//   - Abort: Idempotent cancellation handle for one stream
//
// # Usage
//
//	ctx, abort := transport.WithAbort(ctx)
//	defer abort.Abort()
//
//	err := client.Stream(ctx, transport.Request{URL: url, Body: body}, transport.Callbacks{
//		OnMessage: func(f transport.Frame) error {
//			fmt.Println(f.Data)
//			return nil
//		},
//	})
package transport
