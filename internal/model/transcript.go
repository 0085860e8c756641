// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Transcript is an immutable snapshot of a conversation's turns.
// The zero value is an empty transcript.
type Transcript struct {
	turns []Turn
}

// NewTranscript returns a snapshot holding a copy of turns.
func NewTranscript(turns []Turn) Transcript {
	if len(turns) == 0 {
		return Transcript{}
	}
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return Transcript{turns: cp}
}

// Turns returns a copy of the turns in order.
func (t Transcript) Turns() []Turn {
	if len(t.turns) == 0 {
		return nil
	}
	cp := make([]Turn, len(t.turns))
	copy(cp, t.turns)
	return cp
}

// Len returns the number of turns.
func (t Transcript) Len() int {
	return len(t.turns)
}

// At returns the turn at index i.
func (t Transcript) At(i int) (Turn, bool) {
	if i < 0 || i >= len(t.turns) {
		return Turn{}, false
	}
	return t.turns[i], true
}

// Last returns the final turn.
func (t Transcript) Last() (Turn, bool) {
	return t.At(len(t.turns) - 1)
}

// Tail returns up to the last n turns.
func (t Transcript) Tail(n int) []Turn {
	if n <= 0 || len(t.turns) == 0 {
		return nil
	}
	if n > len(t.turns) {
		n = len(t.turns)
	}
	cp := make([]Turn, n)
	copy(cp, t.turns[len(t.turns)-n:])
	return cp
}

// Pending returns the index of the open placeholder, or -1.
// Only the tail can be open.
func (t Transcript) Pending() int {
	if last, ok := t.Last(); ok && last.IsPending() {
		return last.Index
	}
	return -1
}

// IsEmpty returns true if the transcript has no turns.
func (t Transcript) IsEmpty() bool {
	return len(t.turns) == 0
}
