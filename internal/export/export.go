// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/storage"
	"github.com/jeranaias/chatstream/internal/util"
)

// Exporter renders an archived transcript in one file format.
type Exporter interface {
	Export(t *storage.ArchivedTranscript) ([]byte, error)
	// Ext is the file extension, including the dot.
	Ext() string
}

// Options controls what the Markdown exporter includes. JSON output is
// always the complete record.
type Options struct {
	// Metadata adds the YAML frontmatter and the conversation summary block.
	Metadata bool
	// Timestamps adds the time of each turn to its heading.
	Timestamps bool
}

// DefaultOptions includes everything.
func DefaultOptions() Options {
	return Options{Metadata: true, Timestamps: true}
}

// ForFormat returns the exporter for "markdown" (or "md") and "json".
func ForFormat(format string, opts Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want markdown or json)", format)
	}
}

// WriteFile renders t with e into dir and returns the written path. The file
// is named after the conversation and the export time, so repeated exports
// never overwrite each other.
func WriteFile(dir string, t *storage.ArchivedTranscript, e Exporter) (string, error) {
	content, err := e.Export(t)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", t.ConversationID, err)
	}

	if dir == "" {
		dir = "."
	}
	// Exports are for sharing; unlike the archive they are world-readable.
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	name := fileName(t.ConversationID, time.Now()) + e.Ext()
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// fileName builds "<conversation>_<UTC time>" with every character outside
// [A-Za-z0-9._-] replaced by '_'.
func fileName(conversationID string, at time.Time) string {
	const maxID = 64

	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, conversationID)
	id = strings.Trim(id, ".")
	if len(id) > maxID {
		id = id[:maxID]
	}
	if id == "" {
		id = "conversation"
	}
	return id + "_" + at.UTC().Format("20060102T150405Z")
}
