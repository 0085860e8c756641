// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "fmt"

// State is the coordinator's position in the turn lifecycle.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateStreaming
	StateDone
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether s ends a turn.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateAborted
}
