// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "maps"

// Request body keys set by the coordinator. They override caller params.
const (
	KeyConversationID = "conversationId"
	KeyStreaming      = "streaming"
	KeyQuery          = "query"
	KeyVisitorID      = "visitorId"
	KeyChannel        = "channel"
)

// buildRequestBody copies params and adds the reserved keys. channel is
// omitted when empty.
func buildRequestBody(params map[string]any, query, visitorID, channel string) map[string]any {
	body := make(map[string]any, len(params)+4)
	maps.Copy(body, params)
	body[KeyStreaming] = true
	body[KeyQuery] = query
	body[KeyVisitorID] = visitorID
	if channel != "" {
		body[KeyChannel] = channel
	}
	return body
}
