// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects callback invocations.
type recorder struct {
	opened   []ResponseMeta
	messages []Frame
	closed   int
	errs     []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnOpen: func(m ResponseMeta) error {
			r.opened = append(r.opened, m)
			return nil
		},
		OnMessage: func(f Frame) error {
			r.messages = append(r.messages, f)
			return nil
		},
		OnClose: func() { r.closed++ },
		OnError: func(err error) { r.errs = append(r.errs, err) },
	}
}

func (r *recorder) data() []string {
	out := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m.Data)
	}
	return out
}

func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
	}
}

func TestStream_DeliversFramesInOrder(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		sseHandler("H", "Hi", "[DONE]")(w, r)
	}))
	defer srv.Close()

	rec := &recorder{}
	client := NewClient(Options{UserAgent: "chatstream-test"})
	err := client.Stream(t.Context(), Request{
		URL:  srv.URL,
		Body: map[string]any{"query": "hello", "streaming": true},
	}, rec.callbacks())

	require.NoError(t, err)
	require.Len(t, rec.opened, 1)
	assert.Equal(t, http.StatusOK, rec.opened[0].StatusCode)
	assert.Equal(t, "text/event-stream", rec.opened[0].ContentType)
	assert.Equal(t, []string{"H", "Hi", "[DONE]"}, rec.data())
	assert.Equal(t, 1, rec.closed)
	assert.Empty(t, rec.errs)

	assert.Equal(t, "hello", gotBody["query"])
	assert.Equal(t, true, gotBody["streaming"])
	assert.Equal(t, "text/event-stream", gotHeader.Get("Accept"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "no-cache", gotHeader.Get("Cache-Control"))
	assert.Equal(t, "chatstream-test", gotHeader.Get("User-Agent"))
}

func TestStream_OpenFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{"bad request", http.StatusBadRequest, ErrFatal},
		{"payment required", http.StatusPaymentRequired, ErrUsageLimit},
		{"too many requests", http.StatusTooManyRequests, ErrRetriable},
		{"server error", http.StatusInternalServerError, ErrRetriable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			}))
			defer srv.Close()

			rec := &recorder{}
			err := NewClient(Options{}).Stream(t.Context(), Request{URL: srv.URL, Body: map[string]any{}}, rec.callbacks())

			require.ErrorIs(t, err, tt.target)
			assert.Empty(t, rec.opened)
			assert.Empty(t, rec.messages)
			assert.Zero(t, rec.closed)
			require.Len(t, rec.errs, 1)
			assert.Equal(t, err, rec.errs[0])
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestStream_WrongContentTypeIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"answer":"4"}`)
	}))
	defer srv.Close()

	rec := &recorder{}
	err := NewClient(Options{}).Stream(t.Context(), Request{URL: srv.URL}, rec.callbacks())

	assert.ErrorIs(t, err, ErrUnexpectedContentType)
	assert.True(t, IsRetryable(err))
	assert.Empty(t, rec.opened)
}

func TestStream_NetworkFailureIsRetriable(t *testing.T) {
	srv := httptest.NewServer(sseHandler())
	url := srv.URL
	srv.Close()

	rec := &recorder{}
	err := NewClient(Options{}).Stream(t.Context(), Request{URL: url}, rec.callbacks())

	var retriable *RetriableError
	require.ErrorAs(t, err, &retriable)
	assert.Zero(t, retriable.StatusCode)
	assert.Len(t, rec.errs, 1)
}

func TestStream_CallbackErrors(t *testing.T) {
	boom := errors.New("boom")
	srv := httptest.NewServer(sseHandler("a", "b", "c"))
	defer srv.Close()

	t.Run("message", func(t *testing.T) {
		rec := &recorder{}
		cb := rec.callbacks()
		cb.OnMessage = func(f Frame) error {
			rec.messages = append(rec.messages, f)
			return boom
		}

		err := NewClient(Options{}).Stream(t.Context(), Request{URL: srv.URL}, cb)

		assert.ErrorIs(t, err, ErrCallback)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, rec.messages, 1)
		assert.Zero(t, rec.closed)
		require.Len(t, rec.errs, 1)
	})

	t.Run("open", func(t *testing.T) {
		rec := &recorder{}
		cb := rec.callbacks()
		cb.OnOpen = func(ResponseMeta) error { return boom }

		err := NewClient(Options{}).Stream(t.Context(), Request{URL: srv.URL}, cb)

		var cbErr *CallbackError
		require.ErrorAs(t, err, &cbErr)
		assert.Equal(t, "open", cbErr.Stage)
		assert.Empty(t, rec.messages)
	})
}

func TestStream_AbortStopsDelivery(t *testing.T) {
	srv := httptest.NewServer(sseHandler("a", "b", "c", "d"))
	defer srv.Close()

	ctx, abort := WithAbort(t.Context())
	defer abort.Abort()

	rec := &recorder{}
	cb := rec.callbacks()
	cb.OnMessage = func(f Frame) error {
		rec.messages = append(rec.messages, f)
		abort.Abort()
		return nil
	}

	err := NewClient(Options{}).Stream(ctx, Request{URL: srv.URL}, cb)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rec.messages, 1)
	assert.Zero(t, rec.closed)
	assert.Empty(t, rec.errs)
}

func TestStream_CancelBeforeOpen(t *testing.T) {
	srv := httptest.NewServer(sseHandler("a"))
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	rec := &recorder{}
	err := NewClient(Options{}).Stream(ctx, Request{URL: srv.URL}, rec.callbacks())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.opened)
	assert.Empty(t, rec.errs)
}

func TestStream_IdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	err := NewClient(Options{IdleTimeout: 100 * time.Millisecond}).Stream(t.Context(), Request{URL: srv.URL}, rec.callbacks())

	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.ErrorIs(t, err, ErrRetriable)
	assert.Equal(t, []string{"first"}, rec.data())
	assert.Zero(t, rec.closed)
}

func TestStream_OpenTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	err := NewClient(Options{OpenTimeout: 50 * time.Millisecond}).Stream(t.Context(), Request{URL: srv.URL}, rec.callbacks())

	assert.ErrorIs(t, err, ErrOpenTimeout)
	assert.True(t, IsRetryable(err))
	assert.Empty(t, rec.opened)
}

func TestStream_FrameTooLarge(t *testing.T) {
	srv := httptest.NewServer(sseHandler("short", "this frame is far longer than the limit allows"))
	defer srv.Close()

	rec := &recorder{}
	err := NewClient(Options{MaxFrameBytes: 16}).Stream(t.Context(), Request{URL: srv.URL}, rec.callbacks())

	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, []string{"short"}, rec.data())
}

func TestStream_UnencodableBody(t *testing.T) {
	rec := &recorder{}
	err := NewClient(Options{}).Stream(t.Context(), Request{URL: "http://127.0.0.1:1", Body: make(chan int)}, rec.callbacks())

	require.Error(t, err)
	assert.Len(t, rec.errs, 1)
}
