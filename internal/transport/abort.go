// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"sync"
)

// =============================================================================
// ABORT HANDLE (THREAD-SAFE)
// =============================================================================

// Abort cancels one stream. It is safe for concurrent use and Abort may be
// called any number of times; only the first call has an effect.
type Abort struct {
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	aborted    bool
}

// WithAbort derives a cancellable context from parent and returns the
// handle that cancels it. Callers must call Abort on every exit path to
// release the context.
func WithAbort(parent context.Context) (context.Context, *Abort) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &Abort{cancelFunc: cancel}
}

// Abort cancels the context. It reports whether this call performed the
// cancellation.
func (a *Abort) Abort() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.aborted {
		return false
	}
	a.aborted = true
	if a.cancelFunc != nil {
		a.cancelFunc()
		a.cancelFunc = nil
	}
	return true
}

// Aborted reports whether Abort has been called.
func (a *Abort) Aborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aborted
}
