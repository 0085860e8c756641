// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(status int, contentType, body string) *http.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		ct        string
		wantNil   bool
		wantClass string
	}{
		{"event stream", 200, "text/event-stream", true, ""},
		{"event stream with charset", 200, "text/event-stream; charset=utf-8", true, ""},
		{"wrong content type", 200, "application/json", false, "retriable"},
		{"missing content type", 200, "", false, "retriable"},
		{"bad request", 400, "application/json", false, "fatal"},
		{"unauthorized", 401, "", false, "fatal"},
		{"payment required", 402, "", false, "usage_limit"},
		{"not found", 404, "", false, "fatal"},
		{"too many requests", 429, "", false, "retriable"},
		{"internal error", 500, "", false, "retriable"},
		{"bad gateway", 502, "", false, "retriable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyResponse(response(tt.status, tt.ct, ""))
			if tt.wantNil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantClass, Class(err))
		})
	}
}

func TestClassifyResponse_UsageLimitIsFatal(t *testing.T) {
	err := ClassifyResponse(response(402, "application/json", `{"message":"quota exceeded"}`))

	assert.ErrorIs(t, err, ErrUsageLimit)
	assert.ErrorIs(t, err, ErrFatal)
	assert.False(t, IsRetryable(err))

	var usage *UsageLimitError
	require.ErrorAs(t, err, &usage)
	assert.Equal(t, "quota exceeded", usage.Message)
}

func TestClassifyResponse_WrongContentType(t *testing.T) {
	err := ClassifyResponse(response(200, "text/html", "<html></html>"))
	assert.ErrorIs(t, err, ErrUnexpectedContentType)
	assert.True(t, IsRetryable(err))
}

func TestClassifyResponse_RetryAfter(t *testing.T) {
	resp := response(429, "", "slow down")
	resp.Header.Set("Retry-After", "7")

	err := ClassifyResponse(resp)

	var retriable *RetriableError
	require.ErrorAs(t, err, &retriable)
	assert.Equal(t, 7*time.Second, retriable.RetryAfter)
	assert.Equal(t, "slow down", retriable.Message)
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"bad conversation"}}`, "bad conversation"},
		{`{"error":"flat error"}`, "flat error"},
		{`{"message":"plain message"}`, "plain message"},
		{`{"detail":"detail text"}`, "detail text"},
		{"  not json  ", "not json"},
		{"", ""},
		{strings.Repeat("z", 300), strings.Repeat("z", 200) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, readErrorMessage(strings.NewReader(tt.body)))
	}
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Greater(t, parseRetryAfter(future), 30*time.Minute)
}

func TestErrorTypes(t *testing.T) {
	boom := errors.New("boom")

	cb := &CallbackError{Stage: "message", Err: boom}
	assert.ErrorIs(t, cb, ErrCallback)
	assert.ErrorIs(t, cb, boom)
	assert.Equal(t, "message callback: boom", cb.Error())
	assert.False(t, IsRetryable(cb))

	idle := &RetriableError{Cause: ErrIdleTimeout}
	assert.ErrorIs(t, idle, ErrRetriable)
	assert.ErrorIs(t, idle, ErrIdleTimeout)
	assert.Contains(t, idle.Error(), "idle timeout")

	fatal := &FatalRequestError{StatusCode: 400, Message: "missing conversationId"}
	assert.Equal(t, "request rejected (HTTP 400): missing conversationId", fatal.Error())
	assert.NotErrorIs(t, fatal, ErrUsageLimit)

	assert.False(t, IsRetryable(nil))
	assert.Equal(t, "other", Class(boom))
}

func TestAbort(t *testing.T) {
	ctx, abort := WithAbort(t.Context())

	assert.False(t, abort.Aborted())
	assert.True(t, abort.Abort())
	assert.False(t, abort.Abort())
	assert.True(t, abort.Aborted())

	select {
	case <-ctx.Done():
	default:
		t.Fatal("context not cancelled")
	}
}
