// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history owns a chat transcript while answers stream into it.
//
// The Accumulator appends a human turn and an empty agent placeholder per
// submission, rewrites the placeholder with each cumulative answer, and
// seals it when the stream ends. At most one placeholder is open at a time.
// Every visible change is published to subscribers as a read-only
// model.Transcript snapshot, in mutation order.
//
// # Key Types
//
//   - Accumulator: Mutex-guarded transcript owner with subscriptions
//   - Listener: Callback receiving transcript snapshots
//
// # Usage
//
//	acc := history.New()
//	unsubscribe := acc.Subscribe(func(t model.Transcript) { render(t) })
//	defer unsubscribe()
//
//	idx, err := acc.BeginTurn("2+2?")
//	acc.ApplyTextChunk(idx, "4")
//	acc.Finalize(idx, model.OutcomeCompleted, "")
package history
