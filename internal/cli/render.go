// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/util"
)

// renderMarkdown renders text for the terminal, falling back to the raw
// text when the renderer fails.
func renderMarkdown(text string, width int) string {
	if width > maxRenderWidth {
		width = maxRenderWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return rendered
}

// =============================================================================
// STREAM PROGRESS
// =============================================================================

// progress shows an agent turn while it streams and once it settles.
// update may be called from the notification goroutine.
type progress interface {
	update(content string)
	finish(turn model.Turn)
}

// newProgress picks the live display for out. Markdown rendering uses a
// status line on errOut while streaming and renders the answer at the end;
// otherwise the answer is written to out as it grows.
func newProgress(out, errOut io.Writer, markdown bool) progress {
	if markdown && isStdout(out) && IsStdoutTTY() {
		return &statusProgress{out: out, status: errOut, width: GetTerminalWidth()}
	}
	return &rawProgress{w: out}
}

// rawProgress writes each update's new suffix. Frames are cumulative, so
// normally each update extends the last. A replaced answer (an [ERROR]
// frame or a fallback message) is written on its own line at the end.
type rawProgress struct {
	mu      sync.Mutex
	w       io.Writer
	printed string
	done    bool
}

func (p *rawProgress) update(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || !strings.HasPrefix(content, p.printed) {
		return
	}
	io.WriteString(p.w, content[len(p.printed):])
	p.printed = content
}

func (p *rawProgress) finish(turn model.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true

	switch {
	case strings.HasPrefix(turn.Content, p.printed):
		io.WriteString(p.w, turn.Content[len(p.printed):])
	case p.printed != "":
		io.WriteString(p.w, "\n"+turn.Content)
	default:
		io.WriteString(p.w, turn.Content)
	}
	io.WriteString(p.w, "\n")

	if turn.Outcome == model.OutcomeCancelled {
		fmt.Fprintln(p.w, WarningStyle.Render(outcomeTag(turn.Outcome)))
	}
}

// statusProgress keeps a one-line preview on the status writer and renders
// the final answer as markdown.
type statusProgress struct {
	mu     sync.Mutex
	out    io.Writer
	status io.Writer
	width  int
	done   bool
}

func (p *statusProgress) update(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	line := util.Preview(content, p.width-2)
	if line == "" {
		line = "..."
	}
	fmt.Fprintf(p.status, "\r\033[K%s", DimStyle.Render(line))
}

func (p *statusProgress) finish(turn model.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	fmt.Fprint(p.status, "\r\033[K")

	if turn.Outcome == model.OutcomeCompleted {
		fmt.Fprint(p.out, renderMarkdown(turn.Content, p.width))
		return
	}
	fmt.Fprintln(p.out, OutcomeStyle(turn.Outcome).Render(turn.Content))
	if turn.Outcome == model.OutcomeCancelled {
		fmt.Fprintln(p.out, WarningStyle.Render(outcomeTag(turn.Outcome)))
	}
}
