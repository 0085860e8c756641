// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat coordinates chat turns: it accepts one submission at a time,
// streams the answer into the transcript and turns every failure into
// transcript content.
//
// # State Machine
//
//	Idle --Submit--> Opening --open--> Streaming --[DONE]--> Done
//	                    |                  |--[ERROR]/close/error--> Failed
//	                    |--open failure--> Failed
//	any --CancelActive/Close/ctx--> Aborted
//
// Terminal states are recorded as LastOutcome and the coordinator returns
// to Idle immediately.
//
// # Usage
//
//	coord, err := chat.New(client, visitor.NewService(store), chat.Options{
//		Endpoint: cfg.Endpoint.URL,
//		Params:   map[string]any{"conversationId": id},
//	})
//	if err != nil {
//		return err
//	}
//	defer coord.Close()
//
//	if err := coord.Submit(ctx, "2+2?"); err != nil {
//		return err // ErrEmptyInput or ErrBusy
//	}
//	coord.Wait(ctx)
//	last, _ := coord.Transcript().Last()
package chat
