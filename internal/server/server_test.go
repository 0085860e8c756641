// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/sentinel"
	"github.com/jeranaias/chatstream/internal/transport"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func validBody(query string) map[string]any {
	return map[string]any{
		"conversationId": "conv-1",
		"query":          query,
		"streaming":      true,
		"visitorId":      "visitor-1",
	}
}

// readFrames returns every data payload in the response body.
func readFrames(t *testing.T, body io.Reader) []string {
	t.Helper()
	reader := transport.NewReader(body, 0)
	var out []string
	for {
		f, err := reader.ReadEvent()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f.Data)
	}
}

func decodeAll(t *testing.T, frames []string) []string {
	t.Helper()
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		ev, err := sentinel.Decode(f)
		require.NoError(t, err)
		switch ev.Kind {
		case sentinel.KindText:
			out = append(out, ev.Text)
		case sentinel.KindDone:
			out = append(out, "<done>")
		case sentinel.KindError:
			out = append(out, "<error>"+ev.Text)
		}
	}
	return out
}

func TestCompletion_StreamsCumulativeFrames(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp := post(t, srv.URL+DefaultPath, validBody("hello there"))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readFrames(t, resp.Body)
	assert.Equal(t, "You%20said%3A", frames[1])
	assert.Equal(t, []string{
		"You",
		"You said:",
		"You said: hello",
		"You said: hello there",
		"<done>",
	}, decodeAll(t, frames))
}

func TestCompletion_Arithmetic(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp := post(t, srv.URL+DefaultPath, validBody("2+2?"))

	assert.Equal(t, []string{"4", "<done>"}, decodeAll(t, readFrames(t, resp.Body)))
}

func TestCompletion_Validation(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing conversationId", map[string]any{"query": "hi", "streaming": true}},
		{"missing query", map[string]any{"conversationId": "c", "streaming": true}},
		{"blank query", map[string]any{"conversationId": "c", "query": "  ", "streaming": true}},
		{"not streaming", map[string]any{"conversationId": "c", "query": "hi", "streaming": false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+DefaultPath, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		resp, err := http.Post(srv.URL+DefaultPath, "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(srv.URL + DefaultPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestCompletion_Directives(t *testing.T) {
	srv := newTestServer(t, Options{})

	t.Run("status", func(t *testing.T) {
		for _, code := range []int{400, 402, 429, 500, 503} {
			resp := post(t, srv.URL+DefaultPath, validBody("/status "+strconv.Itoa(code)))
			assert.Equal(t, code, resp.StatusCode)
			assert.Error(t, transport.ClassifyResponse(resp))
		}
	})

	t.Run("status 200 is not a stream", func(t *testing.T) {
		resp := post(t, srv.URL+DefaultPath, validBody("/status 200"))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.ErrorIs(t, transport.ClassifyResponse(resp), transport.ErrUnexpectedContentType)
	})

	t.Run("bad status argument", func(t *testing.T) {
		resp := post(t, srv.URL+DefaultPath, validBody("/status nope"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("error", func(t *testing.T) {
		resp := post(t, srv.URL+DefaultPath, validBody("/error Something broke"))
		got := decodeAll(t, readFrames(t, resp.Body))
		require.NotEmpty(t, got)
		assert.Equal(t, "<error>Something broke", got[len(got)-1])
		assert.Equal(t, "Working on it", got[len(got)-2])
	})

	t.Run("drop", func(t *testing.T) {
		resp := post(t, srv.URL+DefaultPath, validBody("/drop"))
		got := decodeAll(t, readFrames(t, resp.Body))
		require.NotEmpty(t, got)
		assert.NotContains(t, got, "<done>")
		assert.Equal(t, "Working on it", got[len(got)-1])
	})
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimit: 0.5, Burst: 1})

	first := post(t, srv.URL+DefaultPath, validBody("hi"))
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := post(t, srv.URL+DefaultPath, validBody("hi"))
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	retryAfter, err := strconv.Atoi(second.Header.Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)

	var retriable *transport.RetriableError
	require.ErrorAs(t, transport.ClassifyResponse(second), &retriable)
	assert.Greater(t, retriable.RetryAfter, time.Duration(0))

	// Health stays reachable
	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	assert.Zero(t, rl.Reserve("10.0.0.1"))
	assert.Positive(t, rl.Reserve("10.0.0.1"))
	assert.Zero(t, rl.Reserve("10.0.0.2"))
	assert.Equal(t, 0, rl.Remaining("10.0.0.1"))
	assert.Equal(t, 1, rl.Remaining("10.0.0.3"))

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.Zero(t, unlimited.Reserve("10.0.0.1"))
	}
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, Options{Path: "/chat"})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "/chat", health.Path)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})
	post(t, srv.URL+DefaultPath, validBody("hi"))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatstream_backend_requests_total")
}

func TestRecovery(t *testing.T) {
	srv := newTestServer(t, Options{Answer: func(string) string { panic("answer bug") }})

	resp := post(t, srv.URL+DefaultPath, validBody("hi"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestDefaultAnswer(t *testing.T) {
	tests := map[string]string{
		"2+2?":    "4",
		" 7 * 6 ": "42",
		"10 - 15": "-5",
		"9/2":     "4.5",
		"1/0":     "Division by zero is undefined.",
		"hello":   "You said: hello",
	}
	for query, want := range tests {
		assert.Equal(t, want, DefaultAnswer(query), query)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.9:4000", "", "", "203.0.113.9"},
		{"untrusted proxy ignored", "203.0.113.9:4000", "198.51.100.1", "", "203.0.113.9"},
		{"trusted proxy forwarded", "127.0.0.1:4000", "198.51.100.1, 10.0.0.1", "", "198.51.100.1"},
		{"trusted proxy real ip", "10.1.2.3:4000", "", "198.51.100.2", "198.51.100.2"},
		{"invalid forwarded ignored", "127.0.0.1:4000", "not-an-ip", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- New(Options{}).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
