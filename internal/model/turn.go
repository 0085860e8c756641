// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a turn.
type Role string

const (
	RoleHuman Role = "human"
	RoleAgent Role = "agent"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleHuman:
		return "You"
	case RoleAgent:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// OUTCOME TYPE
// =============================================================================

// Outcome records how an agent turn reached its terminal state.
type Outcome string

const (
	// OutcomePending means the turn is still streaming.
	OutcomePending Outcome = "pending"
	// OutcomeCompleted means the stream ended with the done marker.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the backend sent an in-band error message.
	OutcomeFailed Outcome = "failed"
	// OutcomeAborted means the stream broke and a fallback message may
	// have replaced an empty answer.
	OutcomeAborted Outcome = "aborted"
	// OutcomeCancelled means the consumer cancelled the turn. Content is
	// whatever had streamed in at that point.
	OutcomeCancelled Outcome = "cancelled"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is a single message in a transcript.
type Turn struct {
	// Index is the position of the turn in its transcript.
	Index int `json:"index"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Terminal turns are immutable.
	Terminal bool    `json:"terminal"`
	Outcome  Outcome `json:"outcome,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewHumanTurn creates a terminal human turn.
func NewHumanTurn(index int, content string) Turn {
	now := time.Now()
	return Turn{
		Index:     index,
		Role:      RoleHuman,
		Content:   content,
		Terminal:  true,
		Outcome:   OutcomeCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewAgentPlaceholder creates the empty agent turn that a stream fills in.
func NewAgentPlaceholder(index int) Turn {
	now := time.Now()
	return Turn{
		Index:     index,
		Role:      RoleAgent,
		Outcome:   OutcomePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsPending returns true if the turn is an open agent placeholder.
func (t Turn) IsPending() bool {
	return t.Role == RoleAgent && !t.Terminal
}
