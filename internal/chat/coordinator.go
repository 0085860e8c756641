// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/chatstream/internal/history"
	"github.com/jeranaias/chatstream/internal/locale"
	"github.com/jeranaias/chatstream/internal/metrics"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/sentinel"
	"github.com/jeranaias/chatstream/internal/transport"
	"github.com/jeranaias/chatstream/internal/visitor"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned by Submit for empty or whitespace-only text.
	ErrEmptyInput = errors.New("chat: input is empty")

	// ErrBusy is returned by Submit while a turn is in progress.
	ErrBusy = errors.New("chat: a turn is already in progress")

	// ErrMissingConversationID is returned by New when Params has no
	// non-empty conversationId.
	ErrMissingConversationID = errors.New("chat: params must include a non-empty conversationId")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("chat: coordinator is closed")

	// ErrClosedWithoutDone is recorded when the stream ends before [DONE].
	ErrClosedWithoutDone = errors.New("chat: stream closed before completion")

	// ErrErrorChunk is recorded when the backend sends an [ERROR] sentinel.
	ErrErrorChunk = errors.New("chat: backend reported an error")
)

// =============================================================================
// TYPES
// =============================================================================

// Streamer opens one event stream. *transport.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, req transport.Request, cb transport.Callbacks) error
}

// Options configures a Coordinator.
type Options struct {
	// Endpoint is the completion URL every turn is posted to.
	Endpoint string

	// Params are copied into every request body. They must contain a
	// non-empty string conversationId.
	Params map[string]any

	// Channel is sent as "channel" when non-empty.
	Channel string

	// Catalog supplies the failure messages. Zero value selects
	// locale.Default().
	Catalog locale.Catalog

	// History receives the turns. A new accumulator is created when nil.
	History *history.Accumulator

	Logger *zap.Logger
}

// session is one in-flight turn. index is set before the session goroutine
// starts; after that fields are only touched on that goroutine, except
// finished which is guarded by Coordinator.mu.
type session struct {
	id      string
	index   int
	query   string
	ctx     context.Context
	abort   *transport.Abort
	started time.Time

	finished bool
}

// Coordinator runs chat turns against a single transcript, one at a time.
type Coordinator struct {
	streamer Streamer
	ids      visitor.Provider
	endpoint string
	params   map[string]any
	history  *history.Accumulator
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	last     State
	lastErr  error
	channel  string
	catalog  locale.Catalog
	active   *session
	idle     chan struct{}
	closed   bool
	sessions sync.WaitGroup
}

// New creates a coordinator.
func New(streamer Streamer, ids visitor.Provider, opts Options) (*Coordinator, error) {
	if streamer == nil {
		return nil, errors.New("chat: streamer is required")
	}
	if ids == nil {
		return nil, errors.New("chat: visitor provider is required")
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("chat: endpoint is required")
	}
	if id, _ := opts.Params[KeyConversationID].(string); strings.TrimSpace(id) == "" {
		return nil, ErrMissingConversationID
	}

	params := make(map[string]any, len(opts.Params))
	for k, v := range opts.Params {
		params[k] = v
	}

	catalog := opts.Catalog
	if catalog.GenericFailure == "" || catalog.UsageLimit == "" {
		catalog = locale.Default()
	}

	hist := opts.History
	if hist == nil {
		hist = history.New()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	idle := make(chan struct{})
	close(idle)

	return &Coordinator{
		streamer: streamer,
		ids:      ids,
		endpoint: opts.Endpoint,
		params:   params,
		history:  hist,
		logger:   logger,
		state:    StateIdle,
		last:     StateIdle,
		channel:  opts.Channel,
		catalog:  catalog,
		idle:     idle,
	}, nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit starts a turn for text and returns once it is accepted. The turn
// runs in the background; its result is visible in the transcript. ctx
// bounds the whole turn: cancelling it aborts the turn.
//
// Listeners run while Submit appends the turn and may call back into the
// coordinator; a nested Submit gets ErrBusy.
func (c *Coordinator) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		metrics.SubmitsRejected.WithLabelValues("empty").Inc()
		return ErrEmptyInput
	}

	sessionCtx, abort := transport.WithAbort(ctx)
	s := &session{
		id:      uuid.NewString(),
		index:   -1,
		query:   text,
		ctx:     sessionCtx,
		abort:   abort,
		started: time.Now(),
	}

	// Reserve the slot, then touch history without c.mu held.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		abort.Abort()
		metrics.SubmitsRejected.WithLabelValues("closed").Inc()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		abort.Abort()
		metrics.SubmitsRejected.WithLabelValues("busy").Inc()
		return ErrBusy
	}
	c.active = s
	c.state = StateOpening
	c.lastErr = nil
	c.idle = make(chan struct{})
	c.mu.Unlock()
	metrics.ActiveStreams.Inc()

	defer func() {
		if r := recover(); r != nil {
			// A listener panicked after the turn was appended.
			c.logger.Error("listener panicked", zap.String("session", s.id), zap.Any("panic", r))
			if idx := c.history.Pending(); idx >= 0 {
				s.index = idx
				c.fail(s, fmt.Errorf("chat: panic: %v", r))
			} else {
				c.unreserve(s)
			}
			panic(r)
		}
	}()

	index, err := c.history.BeginTurn(text)
	if err != nil {
		c.unreserve(s)
		metrics.SubmitsRejected.WithLabelValues("busy").Inc()
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}

	c.mu.Lock()
	s.index = index
	if c.closed {
		// Closed while the turn was being appended.
		c.mu.Unlock()
		c.cancelled(s)
		return nil
	}
	c.sessions.Add(1)
	c.mu.Unlock()

	c.logger.Debug("turn accepted", zap.String("session", s.id), zap.Int("index", index))

	go c.run(s)
	return nil
}

// unreserve gives back a slot whose turn never reached the transcript.
func (c *Coordinator) unreserve(s *session) {
	c.mu.Lock()
	if s.finished {
		c.mu.Unlock()
		return
	}
	s.finished = true
	if c.active == s {
		c.active = nil
		c.state = StateIdle
		close(c.idle)
	}
	c.mu.Unlock()

	s.abort.Abort()
	metrics.ActiveStreams.Dec()
}

// run drives one session to a terminal state.
func (c *Coordinator) run(s *session) {
	defer c.sessions.Done()
	defer s.abort.Abort()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("turn panicked", zap.String("session", s.id), zap.Any("panic", r))
			c.fail(s, fmt.Errorf("chat: panic: %v", r))
		}
	}()

	visitorID, err := c.ids.GetOrCreate(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			c.cancelled(s)
			return
		}
		c.fail(s, fmt.Errorf("resolve visitor id: %w", err))
		return
	}

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	req := transport.Request{
		URL:  c.endpoint,
		Body: buildRequestBody(c.params, s.query, visitorID, channel),
	}
	err = c.streamer.Stream(s.ctx, req, transport.Callbacks{
		OnOpen: func(transport.ResponseMeta) error {
			c.opened(s)
			return nil
		},
		OnMessage: func(f transport.Frame) error {
			return c.handleFrame(s, f)
		},
		OnClose: func() {
			c.fail(s, ErrClosedWithoutDone)
		},
		OnError: func(err error) {
			c.fail(s, err)
		},
	})

	// Streamers are not required to report through callbacks.
	switch {
	case c.isFinished(s):
	case s.ctx.Err() != nil:
		c.cancelled(s)
	case err != nil:
		c.fail(s, err)
	default:
		c.fail(s, ErrClosedWithoutDone)
	}
}

// =============================================================================
// EVENT HANDLING
// =============================================================================

func (c *Coordinator) opened(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s && !s.finished {
		c.state = StateStreaming
	}
}

func (c *Coordinator) handleFrame(s *session, f transport.Frame) error {
	if c.isFinished(s) {
		return nil
	}

	ev, err := sentinel.Decode(f.Data)
	if err != nil {
		return err
	}
	metrics.FramesTotal.WithLabelValues(ev.Kind.String()).Inc()

	// Terminal outcomes are recorded even if a listener panics on the
	// notification that seals the turn.
	switch ev.Kind {
	case sentinel.KindDone:
		defer c.finish(s, StateDone, nil)
		c.history.Finalize(s.index, model.OutcomeCompleted, "")
	case sentinel.KindError:
		defer c.finish(s, StateFailed, fmt.Errorf("%w: %s", ErrErrorChunk, ev.Text))
		c.history.ApplyErrorChunk(s.index, ev.Text)
	default:
		c.history.ApplyTextChunk(s.index, ev.Text)
	}
	return nil
}

// fail finalizes the placeholder with the failure message for err.
func (c *Coordinator) fail(s *session, err error) {
	if c.isFinished(s) {
		return
	}
	catalog := c.Catalog()
	fallback := catalog.GenericFailure
	if errors.Is(err, transport.ErrUsageLimit) {
		fallback = catalog.UsageLimit
	}
	defer c.finish(s, StateFailed, err)
	c.history.Finalize(s.index, model.OutcomeAborted, fallback)
}

// cancelled releases the slot without touching the placeholder content.
func (c *Coordinator) cancelled(s *session) {
	if c.isFinished(s) {
		return
	}
	defer c.finish(s, StateAborted, context.Canceled)
	c.history.Release(s.index)
}

// finish records the outcome, returns to Idle and aborts the connection.
func (c *Coordinator) finish(s *session, outcome State, err error) {
	c.mu.Lock()
	if s.finished {
		c.mu.Unlock()
		return
	}
	s.finished = true
	c.last = outcome
	c.lastErr = err
	if c.active == s {
		c.active = nil
		c.state = StateIdle
		close(c.idle)
	}
	c.mu.Unlock()

	s.abort.Abort()

	metrics.ActiveStreams.Dec()
	metrics.StreamsTotal.WithLabelValues(outcome.String()).Inc()
	metrics.StreamDuration.Observe(time.Since(s.started).Seconds())

	fields := []zap.Field{
		zap.String("session", s.id),
		zap.String("outcome", outcome.String()),
		zap.Duration("elapsed", time.Since(s.started)),
	}
	if err != nil && outcome == StateFailed {
		c.logger.Warn("turn failed", append(fields, zap.String("class", transport.Class(err)), zap.Error(err))...)
		return
	}
	c.logger.Debug("turn finished", fields...)
}

func (c *Coordinator) isFinished(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return s.finished
}

// =============================================================================
// CONTROL
// =============================================================================

// CancelActive aborts the turn in progress, if any. The placeholder keeps
// whatever content it has. Safe to call at any time and any number of times.
func (c *Coordinator) CancelActive() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s != nil {
		s.abort.Abort()
	}
}

// Wait blocks until the coordinator is idle or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the active turn, rejects further submissions and waits for
// the session goroutine to exit.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.CancelActive()
	c.sessions.Wait()
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutcome returns the terminal state of the most recent turn, or
// StateIdle before the first turn ends.
func (c *Coordinator) LastOutcome() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// LastError returns the error that ended the most recent turn, nil when it
// completed.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transcript returns a snapshot of the conversation.
func (c *Coordinator) Transcript() model.Transcript {
	return c.history.Snapshot()
}

// Subscribe registers fn for every transcript change.
func (c *Coordinator) Subscribe(fn history.Listener) func() {
	return c.history.Subscribe(fn)
}

// Updates streams transcript snapshots until ctx is done.
func (c *Coordinator) Updates(ctx context.Context) <-chan model.Transcript {
	return c.history.Updates(ctx)
}

// Catalog returns the failure message catalog in use.
func (c *Coordinator) Catalog() locale.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

// SetCatalog replaces the failure messages for subsequent failures.
func (c *Coordinator) SetCatalog(catalog locale.Catalog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = catalog
}

// SetChannel changes the channel sent with subsequent turns.
func (c *Coordinator) SetChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channel = channel
}
