// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"github.com/jeranaias/chatstream/internal/chat"
	"github.com/jeranaias/chatstream/internal/model"
)

// runTurn submits text and blocks until the turn settles, passing the
// agent's content to show each time it changes. When ctx is cancelled the
// turn is cancelled and runTurn still waits for it to settle.
//
// It returns the agent turn as it ended.
func runTurn(ctx context.Context, coord *chat.Coordinator, text string, show func(string)) (model.Turn, error) {
	// The placeholder lands right after the human turn.
	agentIndex := coord.Transcript().Len() + 1

	unsubscribe := coord.Subscribe(func(t model.Transcript) {
		if turn, ok := t.At(agentIndex); ok && turn.Role == model.RoleAgent {
			show(turn.Content)
		}
	})
	defer unsubscribe()

	if err := coord.Submit(ctx, text); err != nil {
		return model.Turn{}, err
	}
	if err := coord.Wait(ctx); err != nil {
		_ = coord.Wait(context.Background())
	}

	turn, _ := coord.Transcript().At(agentIndex)
	return turn, nil
}
