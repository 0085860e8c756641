// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/chatstream/internal/metrics"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultOpenTimeout bounds the wait for response headers.
	DefaultOpenTimeout = 30 * time.Second

	// DefaultIdleTimeout bounds the gap between two frames.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultUserAgent is sent when Options.UserAgent is empty.
	DefaultUserAgent = "chatstream"
)

// sharedStreamingClient is used when no client is supplied. It has no
// overall timeout; the stream is bounded by its context and the open and
// idle timers.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// TYPES
// =============================================================================

// Request is one streaming POST. Body is encoded as JSON.
type Request struct {
	URL  string
	Body any
}

// ResponseMeta describes an accepted response.
type ResponseMeta struct {
	StatusCode  int
	ContentType string
	Header      http.Header
}

// Callbacks receive the stream. Nil callbacks are skipped. All callbacks run
// on the goroutine that called Stream, in arrival order.
type Callbacks struct {
	// OnOpen is called once the response is classified as an event stream.
	OnOpen func(ResponseMeta) error
	// OnMessage is called for every dispatched event.
	OnMessage func(Frame) error
	// OnClose is called when the body ends cleanly.
	OnClose func()
	// OnError is called once with the error Stream is about to return,
	// unless the context was cancelled.
	OnError func(error)
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	HTTPClient    *http.Client
	UserAgent     string
	OpenTimeout   time.Duration
	IdleTimeout   time.Duration
	MaxFrameBytes int
	Logger        *zap.Logger
}

// Client opens server-sent event streams.
type Client struct {
	httpClient    *http.Client
	userAgent     string
	openTimeout   time.Duration
	idleTimeout   time.Duration
	maxFrameBytes int
	logger        *zap.Logger
}

// NewClient creates a streaming client.
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient:    opts.HTTPClient,
		userAgent:     opts.UserAgent,
		openTimeout:   opts.OpenTimeout,
		idleTimeout:   opts.IdleTimeout,
		maxFrameBytes: opts.MaxFrameBytes,
		logger:        opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = sharedStreamingClient
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.openTimeout <= 0 {
		c.openTimeout = DefaultOpenTimeout
	}
	if c.idleTimeout <= 0 {
		c.idleTimeout = DefaultIdleTimeout
	}
	if c.maxFrameBytes <= 0 {
		c.maxFrameBytes = DefaultMaxFrameBytes
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream performs the POST and delivers the response to cb. It returns nil
// after OnClose, ctx.Err() when ctx is cancelled, and otherwise the error
// that was passed to OnError.
func (c *Client) Stream(ctx context.Context, req Request, cb Callbacks) error {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return c.fail(cb, fmt.Errorf("encode request body: %w", err))
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return c.fail(cb, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("User-Agent", c.userAgent)

	openTimer := time.AfterFunc(c.openTimeout, func() { cancel(ErrOpenTimeout) })
	resp, err := c.httpClient.Do(httpReq)
	openTimer.Stop()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		openErr := &RetriableError{Cause: causeOf(streamCtx, err)}
		metrics.StreamOpenErrors.WithLabelValues(Class(openErr)).Inc()
		return c.fail(cb, openErr)
	}
	defer resp.Body.Close()

	if err := ClassifyResponse(resp); err != nil {
		metrics.StreamOpenErrors.WithLabelValues(Class(err)).Inc()
		c.logger.Debug("stream rejected",
			zap.String("url", req.URL),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
		return c.fail(cb, err)
	}

	if cb.OnOpen != nil {
		meta := ResponseMeta{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Header:      resp.Header.Clone(),
		}
		if err := cb.OnOpen(meta); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return c.fail(cb, &CallbackError{Stage: "open", Err: err})
		}
	}

	return c.processStream(ctx, streamCtx, cancel, resp.Body, cb)
}

// processStream reads frames until EOF, failure or cancellation.
func (c *Client) processStream(ctx, streamCtx context.Context, cancel context.CancelCauseFunc, body io.Reader, cb Callbacks) error {
	reader := NewReader(body, c.maxFrameBytes)
	idleTimer := time.AfterFunc(c.idleTimeout, func() { cancel(ErrIdleTimeout) })
	defer idleTimer.Stop()

	for {
		frame, err := reader.ReadEvent()

		// Nothing is delivered after cancellation
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if cb.OnClose != nil {
					cb.OnClose()
				}
				return nil
			}
			if errors.Is(err, ErrFrameTooLarge) {
				return c.fail(cb, &RetriableError{Cause: err})
			}
			return c.fail(cb, &RetriableError{Cause: causeOf(streamCtx, err)})
		}

		idleTimer.Stop()
		if cb.OnMessage != nil {
			if err := cb.OnMessage(frame); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return c.fail(cb, &CallbackError{Stage: "message", Err: err})
			}
		}
		idleTimer.Reset(c.idleTimeout)
	}
}

// fail reports err to OnError and returns it.
func (c *Client) fail(cb Callbacks, err error) error {
	c.logger.Debug("stream failed", zap.String("class", Class(err)), zap.Error(err))
	if cb.OnError != nil {
		cb.OnError(err)
	}
	return err
}

// causeOf prefers the timer cause recorded on ctx over the raw I/O error.
func causeOf(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && (errors.Is(cause, ErrIdleTimeout) || errors.Is(cause, ErrOpenTimeout)) {
		return cause
	}
	return err
}
