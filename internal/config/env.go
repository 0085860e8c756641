// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "os"

// ApplyEnvOverrides applies environment variable overrides:
//   - CHATSTREAM_ENDPOINT: overrides endpoint.url
//   - CHATSTREAM_CHANNEL: overrides endpoint.channel
//   - CHATSTREAM_CONVERSATION_ID: overrides request.conversation_id
//   - CHATSTREAM_MODE: overrides request.mode
//   - CHATSTREAM_MODEL: overrides request.model
//   - CHATSTREAM_LOCALE: overrides locale
//   - CHATSTREAM_LOG_LEVEL: overrides logging.level
//   - CHATSTREAM_STATE_PATH: overrides storage.path
func (c *Config) ApplyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"CHATSTREAM_ENDPOINT", &c.Endpoint.URL},
		{"CHATSTREAM_CHANNEL", &c.Endpoint.Channel},
		{"CHATSTREAM_CONVERSATION_ID", &c.Request.ConversationID},
		{"CHATSTREAM_MODE", &c.Request.Mode},
		{"CHATSTREAM_MODEL", &c.Request.Model},
		{"CHATSTREAM_LOCALE", &c.Locale},
		{"CHATSTREAM_LOG_LEVEL", &c.Logging.Level},
		{"CHATSTREAM_STATE_PATH", &c.Storage.Path},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}
