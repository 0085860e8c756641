// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/chatstream/internal/metrics"
	"github.com/jeranaias/chatstream/internal/sentinel"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the listen address when Options.Addr is empty.
	DefaultAddr = "127.0.0.1:8780"

	// DefaultPath is the completion route when Options.Path is empty.
	DefaultPath = "/api/v1/chat/completions"

	// MaxRequestBodySize bounds the JSON request body (1MB).
	MaxRequestBodySize = 1 << 20

	// partialAnswer is streamed before a simulated failure.
	partialAnswer = "Working on it"
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures the development backend.
type Options struct {
	Addr string
	Path string

	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64
	Burst     int

	// TokenDelay is the pause between streamed words.
	TokenDelay time.Duration

	// Answer produces the reply for a query. DefaultAnswer is used when nil.
	Answer func(query string) string

	Logger *zap.Logger
}

// Server is the development backend.
type Server struct {
	opts    Options
	router  *http.ServeMux
	limiter *RateLimiter
	logger  *zap.Logger
	server  *http.Server
	started time.Time
	active  atomic.Int64
}

// New creates a server. Routes are ready for Handler immediately.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Answer == nil {
		opts.Answer = DefaultAnswer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		opts:    opts,
		router:  http.NewServeMux(),
		limiter: NewRateLimiter(opts.RateLimit, opts.Burst),
		logger:  opts.Logger,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST "+s.opts.Path, s.handleCompletion)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger, s.opts.Path),
		RateLimitMiddleware(s.limiter, s.logger),
	)(s.router)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// Path returns the completion route.
func (s *Server) Path() string {
	return s.opts.Path
}

// ============================================================================
// COMPLETION HANDLER
// ============================================================================

// completionRequest holds the fields the backend checks. Other fields are
// accepted and ignored.
type completionRequest struct {
	ConversationID string `json:"conversationId"`
	Query          string `json:"query"`
	Streaming      bool   `json:"streaming"`
	VisitorID      string `json:"visitorId"`
	Channel        string `json:"channel"`
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch {
	case strings.TrimSpace(req.ConversationID) == "":
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	case strings.TrimSpace(req.Query) == "":
		writeError(w, http.StatusBadRequest, "query is required")
		return
	case !req.Streaming:
		writeError(w, http.StatusBadRequest, "only streaming requests are supported")
		return
	}

	s.logger.Debug("completion",
		zap.String("conversation", req.ConversationID),
		zap.String("visitor", req.VisitorID),
		zap.String("channel", req.Channel))

	query := strings.TrimSpace(req.Query)
	switch directive, arg, _ := strings.Cut(query, " "); directive {
	case "/status":
		code, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || code < 200 || code > 599 {
			writeError(w, http.StatusBadRequest, "usage: /status <code>")
			return
		}
		s.writeStatus(w, code)
	case "/error":
		message := strings.TrimSpace(arg)
		if message == "" {
			message = "simulated failure"
		}
		s.stream(r.Context(), w, words(partialAnswer), sentinel.ErrorPrefix+message)
	case "/drop":
		s.stream(r.Context(), w, words(partialAnswer), "")
	default:
		s.stream(r.Context(), w, words(s.opts.Answer(query)), sentinel.DoneMarker)
	}
}

// writeStatus answers with a non-stream response carrying code.
func (s *Server) writeStatus(w http.ResponseWriter, code int) {
	switch {
	case code == http.StatusPaymentRequired:
		writeError(w, code, "usage limit reached")
	case code == http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "1")
		writeError(w, code, "too many requests")
	case code >= 200 && code < 300:
		writeJSON(w, code, map[string]string{"message": "not a stream"})
	default:
		writeError(w, code, fmt.Sprintf("simulated status %d", code))
	}
}

// stream sends one cumulative frame per word, then final unless it is empty.
func (s *Server) stream(ctx context.Context, w http.ResponseWriter, parts []string, final string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for i := range parts {
		if i > 0 && s.opts.TokenDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.TokenDelay):
			}
		}
		sendFrame(w, flusher, sentinel.Encode(strings.Join(parts[:i+1], " ")))
	}

	if final != "" {
		sendFrame(w, flusher, final)
	}
}

// sendFrame writes a single SSE event.
func sendFrame(w http.ResponseWriter, flusher http.Flusher, data string) {
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func words(s string) []string {
	return strings.Fields(s)
}

// ============================================================================
// ANSWERS
// ============================================================================

var arithmetic = regexp.MustCompile(`^\s*(-?\d+)\s*([-+*/])\s*(-?\d+)\s*\??\s*$`)

// DefaultAnswer evaluates "a op b" integer arithmetic and echoes anything
// else.
func DefaultAnswer(query string) string {
	if m := arithmetic.FindStringSubmatch(query); m != nil {
		a, errA := strconv.ParseInt(m[1], 10, 64)
		b, errB := strconv.ParseInt(m[3], 10, 64)
		if errA == nil && errB == nil {
			switch m[2] {
			case "+":
				return strconv.FormatInt(a+b, 10)
			case "-":
				return strconv.FormatInt(a-b, 10)
			case "*":
				return strconv.FormatInt(a*b, 10)
			case "/":
				if b == 0 {
					return "Division by zero is undefined."
				}
				return strconv.FormatFloat(float64(a)/float64(b), 'f', -1, 64)
			}
		}
	}
	return "You said: " + query
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveStreams int64  `json:"active_streams"`
	Path          string `json:"path"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		ActiveStreams: s.active.Load(),
		Path:          s.opts.Path,
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", zap.String("addr", ln.Addr().String()), zap.String("path", s.opts.Path))
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
