// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ERROR CLASSES
// =============================================================================

var (
	// ErrFatal matches errors a retry would not fix.
	ErrFatal = errors.New("fatal request error")

	// ErrUsageLimit matches the quota exhaustion case of ErrFatal (HTTP 402).
	ErrUsageLimit = errors.New("usage limit reached")

	// ErrRetriable matches server, rate limit and network failures and
	// abnormal stream termination.
	ErrRetriable = errors.New("retriable transport error")

	// ErrCallback matches errors returned by OnOpen or OnMessage.
	ErrCallback = errors.New("stream callback failed")
)

// Causes carried by RetriableError.
var (
	ErrOpenTimeout           = errors.New("no response within open timeout")
	ErrIdleTimeout           = errors.New("no frame received within idle timeout")
	ErrFrameTooLarge         = errors.New("stream frame exceeds size limit")
	ErrUnexpectedContentType = errors.New("response is not an event stream")
)

// UsageLimitError is returned when the backend answers 402 Payment Required.
type UsageLimitError struct {
	StatusCode int
	Message    string
}

func (e *UsageLimitError) Error() string {
	return formatStatusError("usage limit reached", e.StatusCode, e.Message)
}

// Is reports both ErrUsageLimit and ErrFatal.
func (e *UsageLimitError) Is(target error) bool {
	return target == ErrUsageLimit || target == ErrFatal
}

// FatalRequestError is returned for 4xx responses other than 402 and 429.
type FatalRequestError struct {
	StatusCode int
	Message    string
}

func (e *FatalRequestError) Error() string {
	return formatStatusError("request rejected", e.StatusCode, e.Message)
}

// Is reports ErrFatal.
func (e *FatalRequestError) Is(target error) bool {
	return target == ErrFatal
}

// RetriableError is returned for failures that might succeed if repeated.
// StatusCode is zero when no response was received.
type RetriableError struct {
	StatusCode int
	Message    string
	// RetryAfter is the server's Retry-After hint on 429 responses.
	RetryAfter time.Duration
	Cause      error
}

func (e *RetriableError) Error() string {
	if e.StatusCode == 0 {
		if e.Cause != nil {
			return fmt.Sprintf("stream failed: %v", e.Cause)
		}
		return "stream failed"
	}
	msg := formatStatusError("server error", e.StatusCode, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is reports ErrRetriable.
func (e *RetriableError) Is(target error) bool {
	return target == ErrRetriable
}

// Unwrap returns the underlying cause.
func (e *RetriableError) Unwrap() error {
	return e.Cause
}

// CallbackError wraps an error returned by a callback.
type CallbackError struct {
	// Stage is "open" or "message".
	Stage string
	Err   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s callback: %v", e.Stage, e.Err)
}

// Is reports ErrCallback.
func (e *CallbackError) Is(target error) bool {
	return target == ErrCallback
}

// Unwrap returns the callback's error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is in the retriable class. Cancellation
// is never retryable.
func IsRetryable(err error) bool {
	return err != nil && errors.Is(err, ErrRetriable)
}

// Class names the error class of err for logs and metrics:
// "usage_limit", "fatal", "retriable", "callback" or "other".
func Class(err error) string {
	switch {
	case errors.Is(err, ErrUsageLimit):
		return "usage_limit"
	case errors.Is(err, ErrFatal):
		return "fatal"
	case errors.Is(err, ErrRetriable):
		return "retriable"
	case errors.Is(err, ErrCallback):
		return "callback"
	default:
		return "other"
	}
}

func formatStatusError(prefix string, status int, message string) string {
	if message == "" {
		return fmt.Sprintf("%s (HTTP %d)", prefix, status)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", prefix, status, message)
}

// =============================================================================
// RESPONSE CLASSIFICATION
// =============================================================================

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// ClassifyResponse returns nil when resp opens an event stream, otherwise
// the classified error. For error responses the body is consumed.
func ClassifyResponse(resp *http.Response) error {
	status := resp.StatusCode
	contentType := resp.Header.Get("Content-Type")

	if status >= 200 && status < 300 {
		if isEventStream(contentType) {
			return nil
		}
		return &RetriableError{
			StatusCode: status,
			Cause:      fmt.Errorf("%w: content type %q", ErrUnexpectedContentType, contentType),
		}
	}

	message := readErrorMessage(resp.Body)

	switch {
	case status == http.StatusPaymentRequired:
		return &UsageLimitError{StatusCode: status, Message: message}

	case status == http.StatusTooManyRequests:
		return &RetriableError{
			StatusCode: status,
			Message:    message,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	case status >= 400 && status < 500:
		return &FatalRequestError{StatusCode: status, Message: message}

	default:
		return &RetriableError{StatusCode: status, Message: message}
	}
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}

// readErrorMessage extracts a human readable message from an error body.
// It understands {"error":{"message":...}}, {"error":"..."},
// {"message":...} and {"detail":...}, and falls back to the raw text.
func readErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		if len(parsed.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(parsed.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if json.Unmarshal(parsed.Error, &flat) == nil && flat != "" {
				return flat
			}
		}
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Detail != "" {
			return parsed.Detail
		}
	}

	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
