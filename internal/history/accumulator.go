// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jeranaias/chatstream/internal/model"
)

// ErrTurnInFlight is returned by BeginTurn while a placeholder is still open.
var ErrTurnInFlight = errors.New("history: a turn is already in flight")

// Listener receives a snapshot after each visible mutation.
type Listener func(model.Transcript)

// Accumulator owns an ordered transcript and the single open placeholder.
type Accumulator struct {
	mu    sync.Mutex
	turns []model.Turn
	open  int // index of the open placeholder, -1 when none

	subs    map[int]Listener
	nextSub int

	// Snapshots waiting for delivery, oldest first. Only one goroutine
	// delivers at a time so listeners observe mutation order.
	queue      []model.Transcript
	delivering bool
}

// New creates an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{
		open: -1,
		subs: make(map[int]Listener),
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// BeginTurn appends a human turn followed by an empty agent placeholder and
// returns the placeholder's index.
func (a *Accumulator) BeginTurn(humanText string) (int, error) {
	a.mu.Lock()
	if a.open >= 0 {
		a.mu.Unlock()
		return -1, ErrTurnInFlight
	}

	humanIdx := len(a.turns)
	a.turns = append(a.turns,
		model.NewHumanTurn(humanIdx, humanText),
		model.NewAgentPlaceholder(humanIdx+1),
	)
	a.open = humanIdx + 1
	idx := a.open

	a.publishLocked()
	return idx, nil
}

// ApplyTextChunk replaces the placeholder's content with the cumulative
// answer text. Chunks carry the whole answer so far, so the content is
// replaced rather than appended. Re-applying the current value changes
// nothing. Chunks for a sealed or unknown turn are ignored.
//
// Returns true if the transcript changed.
func (a *Accumulator) ApplyTextChunk(index int, text string) bool {
	a.mu.Lock()
	if !a.isOpenLocked(index) || a.turns[index].Content == text {
		a.mu.Unlock()
		return false
	}

	t := &a.turns[index]
	t.Content = text
	t.UpdatedAt = time.Now()

	a.publishLocked()
	return true
}

// ApplyErrorChunk replaces the placeholder's content with errText and seals
// it. Any text chunk that arrives for the same turn afterwards is ignored.
func (a *Accumulator) ApplyErrorChunk(index int, errText string) bool {
	a.mu.Lock()
	if !a.isOpenLocked(index) {
		a.mu.Unlock()
		return false
	}

	t := &a.turns[index]
	t.Content = errText
	a.sealLocked(t, model.OutcomeFailed)

	a.publishLocked()
	return true
}

// Finalize seals the placeholder.
//
// With model.OutcomeCompleted the content is kept as is. With
// model.OutcomeAborted the content is replaced by fallback only when nothing
// had streamed in yet; a partial answer is kept. Other outcomes are rejected.
func (a *Accumulator) Finalize(index int, outcome model.Outcome, fallback string) bool {
	if outcome != model.OutcomeCompleted && outcome != model.OutcomeAborted {
		return false
	}

	a.mu.Lock()
	if !a.isOpenLocked(index) {
		a.mu.Unlock()
		return false
	}

	t := &a.turns[index]
	if outcome == model.OutcomeAborted && t.Content == "" {
		t.Content = fallback
	}
	a.sealLocked(t, outcome)

	a.publishLocked()
	return true
}

// Release seals the placeholder after an external cancel and frees the
// slot for the next BeginTurn. The content is left exactly as streamed;
// only Terminal and Outcome (model.OutcomeCancelled) change, and
// subscribers are notified so their last snapshot matches Snapshot.
func (a *Accumulator) Release(index int) bool {
	a.mu.Lock()
	if !a.isOpenLocked(index) {
		a.mu.Unlock()
		return false
	}
	a.sealLocked(&a.turns[index], model.OutcomeCancelled)

	a.publishLocked()
	return true
}

func (a *Accumulator) isOpenLocked(index int) bool {
	return a.open >= 0 && index == a.open
}

func (a *Accumulator) sealLocked(t *model.Turn, outcome model.Outcome) {
	t.Terminal = true
	t.Outcome = outcome
	t.UpdatedAt = time.Now()
	a.open = -1
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns a read-only copy of the transcript.
func (a *Accumulator) Snapshot() model.Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.NewTranscript(a.turns)
}

// Pending returns the index of the open placeholder, or -1.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// Len returns the number of turns.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.turns)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn for every subsequent mutation and returns a
// function that removes it. The unsubscribe function is safe to call more
// than once.
func (a *Accumulator) Subscribe(fn Listener) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

// Updates returns a channel carrying transcript snapshots until ctx is done.
// The channel holds at most one pending snapshot; a slow reader only sees
// the latest one. The channel is closed after ctx is done.
func (a *Accumulator) Updates(ctx context.Context) <-chan model.Transcript {
	ch := make(chan model.Transcript, 1)

	var mu sync.Mutex
	closed := false

	unsubscribe := a.Subscribe(func(t model.Transcript) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		for {
			select {
			case ch <- t:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}

// publishLocked queues a snapshot of the current transcript, releases mu
// and delivers queued snapshots. Must be called with mu held.
func (a *Accumulator) publishLocked() {
	a.queue = append(a.queue, model.NewTranscript(a.turns))
	a.mu.Unlock()
	a.deliver()
}

// deliver drains the queue unless another goroutine already is. Listeners
// run without any lock held, so they may read from the Accumulator.
func (a *Accumulator) deliver() {
	for {
		a.mu.Lock()
		if a.delivering || len(a.queue) == 0 {
			a.mu.Unlock()
			return
		}
		a.delivering = true
		batch := a.queue
		a.queue = nil
		listeners := make([]Listener, 0, len(a.subs))
		for _, fn := range a.subs {
			listeners = append(listeners, fn)
		}
		a.mu.Unlock()

		a.run(batch, listeners)
	}
}

func (a *Accumulator) run(batch []model.Transcript, listeners []Listener) {
	defer func() {
		a.mu.Lock()
		a.delivering = false
		a.mu.Unlock()
	}()

	for _, snap := range batch {
		for _, fn := range listeners {
			fn(snap)
		}
	}
}
