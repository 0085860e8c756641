// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat transcripts.
//
// A transcript is an ordered list of turns. Insertion order is the display
// order and turns are never reordered. The agent turn at the tail may be an
// open placeholder that is rewritten while its answer streams in; once a
// turn is terminal its content no longer changes.
//
// # Key Types
//
//   - Role: Turn author (human or agent)
//   - Outcome: How an agent turn ended (pending, completed, failed, aborted, cancelled)
//   - Turn: One message in the transcript
//   - Transcript: Read-only snapshot of all turns
//
// # Usage
//
//	snap := coordinator.Transcript()
//	for _, turn := range snap.Turns() {
//		fmt.Printf("%s: %s\n", turn.Role.DisplayName(), turn.Content)
//	}
package model
