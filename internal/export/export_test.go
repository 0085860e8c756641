// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/storage"
)

func sampleArchive() *storage.ArchivedTranscript {
	created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	human := model.NewHumanTurn(0, "What is 2+2?")
	human.CreatedAt = created

	agent := model.NewAgentPlaceholder(1)
	agent.Content = "4"
	agent.Terminal = true
	agent.Outcome = model.OutcomeCompleted
	agent.CreatedAt = created

	failedHuman := model.NewHumanTurn(2, "and now?")
	failed := model.NewAgentPlaceholder(3)
	failed.Content = "Something went wrong."
	failed.Terminal = true
	failed.Outcome = model.OutcomeAborted

	return &storage.ArchivedTranscript{
		ConversationID: "conv-1",
		Summary:        "What is 2+2?",
		CreatedAt:      created,
		UpdatedAt:      created.Add(time.Minute),
		Turns:          []model.Turn{human, agent, failedHuman, failed},
	}
}

func TestMarkdownExporter(t *testing.T) {
	e := NewMarkdownExporter(DefaultOptions())
	e.now = func() time.Time { return time.Date(2025, 3, 2, 15, 4, 0, 0, time.UTC) }

	out, err := e.Export(sampleArchive())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: What is 2+2?\n"))
	assert.Contains(t, md, "conversation: conv-1\n")
	assert.Contains(t, md, "created: \"2025-03-01T09:30:00Z\"\n")
	assert.Contains(t, md, "turns: 4\n")
	assert.Contains(t, md, "# What is 2+2?\n")
	assert.Contains(t, md, "> Conversation `conv-1`, 4 turns")
	assert.Contains(t, md, "### [You] <sub>09:30:00</sub>")
	assert.Contains(t, md, "### [Assistant]")
	assert.Contains(t, md, "\n4\n")
	assert.Contains(t, md, "<sub>The stream failed before completing.</sub>")
	assert.True(t, strings.HasSuffix(md, "*Exported from chatstream on March 2, 2025 at 3:04 PM*\n"))
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	out, err := NewMarkdownExporter(Options{}).Export(sampleArchive())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "# What is 2+2?"))
	assert.NotContains(t, md, "> Conversation")
	assert.Contains(t, md, "### [You]\n")
}

func TestMarkdownExporter_Invalid(t *testing.T) {
	e := NewMarkdownExporter(DefaultOptions())

	_, err := e.Export(nil)
	assert.Error(t, err)

	_, err = e.Export(&storage.ArchivedTranscript{ConversationID: "empty"})
	assert.Error(t, err)
}

func TestJSONExporter(t *testing.T) {
	archived := sampleArchive()

	out, err := JSONExporter{}.Export(archived)
	require.NoError(t, err)

	var decoded storage.ArchivedTranscript
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, archived.ConversationID, decoded.ConversationID)
	require.Len(t, decoded.Turns, 4)
	assert.Equal(t, model.OutcomeAborted, decoded.Turns[3].Outcome)
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"markdown", ".md"},
		{"MD", ".md"},
		{" json ", ".json"},
	}
	for _, tt := range tests {
		e, err := ForFormat(tt.format, DefaultOptions())
		require.NoError(t, err, tt.format)
		assert.Equal(t, tt.ext, e.Ext())
	}

	_, err := ForFormat("html", DefaultOptions())
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	path, err := WriteFile(dir, sampleArchive(), NewMarkdownExporter(DefaultOptions()))
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "conv-1_"))
	assert.Equal(t, ".md", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# What is 2+2?")
}

func TestWriteFile_ExportError(t *testing.T) {
	dir := t.TempDir()

	_, err := WriteFile(dir, &storage.ArchivedTranscript{ConversationID: "empty"}, NewMarkdownExporter(DefaultOptions()))
	assert.ErrorContains(t, err, "export empty")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileName(t *testing.T) {
	at := time.Date(2025, 3, 2, 15, 4, 5, 0, time.FixedZone("EST", -5*3600))

	tests := []struct {
		id   string
		want string
	}{
		{"conv-1", "conv-1_20250302T200405Z"},
		{"a/b c:d", "a_b_c_d_20250302T200405Z"},
		{"..", "conversation_20250302T200405Z"},
		{"", "conversation_20250302T200405Z"},
		{strings.Repeat("x", 80), strings.Repeat("x", 64) + "_20250302T200405Z"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fileName(tt.id, at), tt.id)
	}
}

func TestYAMLScalar(t *testing.T) {
	assert.Equal(t, "plain", yamlScalar("plain"))
	assert.Equal(t, `"a: b"`, yamlScalar("a: b"))
	assert.Equal(t, `"line\nbreak"`, yamlScalar("line\nbreak"))
	assert.Equal(t, `""`, yamlScalar(""))
}

func TestEscapeHeading(t *testing.T) {
	assert.Equal(t, `\# not \*bold\*`, escapeHeading("# not *bold*"))
	assert.Equal(t, "Untitled conversation", escapeHeading(""))
}
