// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/chat"
	"github.com/jeranaias/chatstream/internal/locale"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/transport"
	"github.com/jeranaias/chatstream/internal/visitor"
)

func TestCoordinatorAgainstBackend(t *testing.T) {
	srv := newTestServer(t, Options{TokenDelay: time.Millisecond})

	coord, err := chat.New(transport.NewClient(transport.Options{}), visitor.Static("visitor-1"), chat.Options{
		Endpoint: srv.URL + DefaultPath,
		Params:   map[string]any{"conversationId": "conv-e2e"},
	})
	require.NoError(t, err)
	defer coord.Close()

	catalog := locale.Default()
	tests := []struct {
		query   string
		want    string
		outcome chat.State
		turn    model.Outcome
	}{
		{"2+2?", "4", chat.StateDone, model.OutcomeCompleted},
		{"/status 400", catalog.GenericFailure, chat.StateFailed, model.OutcomeAborted},
		{"/status 402", catalog.UsageLimit, chat.StateFailed, model.OutcomeAborted},
		{"/status 503", catalog.GenericFailure, chat.StateFailed, model.OutcomeAborted},
		{"/error model overloaded", "model overloaded", chat.StateFailed, model.OutcomeFailed},
		{"/drop", "Working on it", chat.StateFailed, model.OutcomeAborted},
		{"good morning", "You said: good morning", chat.StateDone, model.OutcomeCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			require.NoError(t, coord.Submit(t.Context(), tt.query))

			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()
			require.NoError(t, coord.Wait(ctx))

			last, ok := coord.Transcript().Last()
			require.True(t, ok)
			assert.Equal(t, tt.want, last.Content)
			assert.Equal(t, tt.turn, last.Outcome)
			assert.Equal(t, tt.outcome, coord.LastOutcome())
			assert.Equal(t, chat.StateIdle, coord.State())
		})
	}

	assert.Equal(t, 2*len(tests), coord.Transcript().Len())
}
