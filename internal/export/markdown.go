// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/storage"
)

// MarkdownExporter renders a transcript as a Markdown document.
type MarkdownExporter struct {
	opts Options

	// now is stubbed in tests.
	now func() time.Time
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts Options) *MarkdownExporter {
	return &MarkdownExporter{opts: opts, now: time.Now}
}

func (e *MarkdownExporter) Ext() string { return ".md" }

// Export renders t. Agent turns that did not complete carry a note saying
// how they ended.
func (e *MarkdownExporter) Export(t *storage.ArchivedTranscript) ([]byte, error) {
	if t == nil {
		return nil, errors.New("transcript is nil")
	}
	if len(t.Turns) == 0 {
		return nil, errors.New("transcript has no turns")
	}

	var b strings.Builder
	exported := e.now()

	if e.opts.Metadata {
		b.WriteString("---\n")
		writeYAML(&b, "title", t.Summary)
		writeYAML(&b, "conversation", t.ConversationID)
		writeYAML(&b, "created", t.CreatedAt.Format(time.RFC3339))
		writeYAML(&b, "updated", t.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "turns: %d\n", len(t.Turns))
		writeYAML(&b, "exported", exported.Format(time.RFC3339))
		b.WriteString("---\n\n")
	}

	fmt.Fprintf(&b, "# %s\n\n", escapeHeading(t.Summary))

	if e.opts.Metadata {
		fmt.Fprintf(&b, "> Conversation `%s`, %d turns, last updated %s.\n\n",
			t.ConversationID, len(t.Turns), t.UpdatedAt.Format("2006-01-02 15:04"))
	}

	for i, turn := range t.Turns {
		if i > 0 {
			b.WriteString("---\n\n")
		}
		heading := "### " + speaker(turn.Role)
		if e.opts.Timestamps && !turn.CreatedAt.IsZero() {
			heading += " <sub>" + turn.CreatedAt.Format("15:04:05") + "</sub>"
		}
		b.WriteString(heading + "\n\n")
		b.WriteString(strings.TrimSpace(turn.Content) + "\n\n")
		if note := endNote(turn); note != "" {
			b.WriteString("<sub>" + note + "</sub>\n\n")
		}
	}

	fmt.Fprintf(&b, "---\n\n*Exported from chatstream on %s*\n",
		exported.Format("January 2, 2006 at 3:04 PM"))
	return []byte(b.String()), nil
}

func speaker(role model.Role) string {
	switch role {
	case model.RoleHuman:
		return "[You]"
	case model.RoleAgent:
		return "[Assistant]"
	default:
		return "[" + role.DisplayName() + "]"
	}
}

// endNote explains agent turns that did not complete.
func endNote(turn model.Turn) string {
	if turn.Role != model.RoleAgent {
		return ""
	}
	switch turn.Outcome {
	case model.OutcomeFailed:
		return "The backend reported an error."
	case model.OutcomeAborted:
		return "The stream failed before completing."
	case model.OutcomeCancelled:
		return "Cancelled; the answer is partial."
	case model.OutcomePending:
		return "Still streaming when archived."
	}
	return ""
}

var headingEscaper = strings.NewReplacer(
	`\`, `\\`, "#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "`", "\\`",
)

// escapeHeading escapes the characters that change how a heading renders.
func escapeHeading(s string) string {
	if s == "" {
		return "Untitled conversation"
	}
	return headingEscaper.Replace(s)
}

// writeYAML writes key: value, double-quoting the value when it is not a
// safe plain scalar.
func writeYAML(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s: %s\n", key, yamlScalar(value))
}

func yamlScalar(s string) string {
	plain := s != "" &&
		!strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*,\n\r\t\\") &&
		strings.TrimSpace(s) == s
	if plain {
		return s
	}
	return fmt.Sprintf("%q", s)
}
