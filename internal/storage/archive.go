// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// ARCHIVED TRANSCRIPT TYPE
// =============================================================================

// ArchivedTranscript is a transcript persisted under its conversation id.
type ArchivedTranscript struct {
	ConversationID string       `json:"conversation_id"`
	Summary        string       `json:"summary"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Turns          []model.Turn `json:"turns"`
}

// Transcript returns the archived turns as a transcript snapshot.
func (a *ArchivedTranscript) Transcript() model.Transcript {
	return model.NewTranscript(a.Turns)
}

// ArchiveMeta describes an archived transcript for listings.
type ArchiveMeta struct {
	ConversationID string    `json:"conversation_id"`
	Summary        string    `json:"summary"`
	UpdatedAt      time.Time `json:"updated_at"`
	TurnCount      int       `json:"turn_count"`
}

// ErrTranscriptNotFound is returned when no transcript is archived under an id.
var ErrTranscriptNotFound = errors.New("storage: transcript not found")

// =============================================================================
// TRANSCRIPT ARCHIVE
// =============================================================================

// Archive stores one JSON file per conversation in BaseDir.
type Archive struct {
	BaseDir string

	// MaxTranscripts limits stored transcripts (0 = unlimited). The least
	// recently updated are removed first.
	MaxTranscripts int
}

// DefaultMaxTranscripts is the retention limit of NewArchive.
const DefaultMaxTranscripts = 100

// NewArchive creates an archive rooted at baseDir.
func NewArchive(baseDir string) (*Archive, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{
		BaseDir:        baseDir,
		MaxTranscripts: DefaultMaxTranscripts,
	}, nil
}

// Save writes t under conversationID, keeping the original creation time
// when the conversation was archived before.
func (s *Archive) Save(conversationID string, t model.Transcript) error {
	if !validArchiveID(conversationID) {
		return fmt.Errorf("storage: invalid conversation id %q", conversationID)
	}

	now := time.Now()
	entry := ArchivedTranscript{
		ConversationID: conversationID,
		Summary:        summarize(t),
		CreatedAt:      now,
		UpdatedAt:      now,
		Turns:          t.Turns(),
	}
	if prev, err := s.Load(conversationID); err == nil {
		entry.CreatedAt = prev.CreatedAt
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := util.AtomicWriteFile(s.filePath(conversationID), data, 0600); err != nil {
		return err
	}

	if s.MaxTranscripts > 0 {
		s.enforceLimit()
	}
	return nil
}

// Load reads the transcript archived under conversationID.
func (s *Archive) Load(conversationID string) (*ArchivedTranscript, error) {
	if !validArchiveID(conversationID) {
		return nil, ErrTranscriptNotFound
	}
	data, err := os.ReadFile(s.filePath(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTranscriptNotFound
		}
		return nil, err
	}

	var entry ArchivedTranscript
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", conversationID, err)
	}
	return &entry, nil
}

// List returns all archived transcripts, most recently updated first.
// Unreadable files are skipped.
func (s *Archive) List() ([]ArchiveMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ArchiveMeta{}, nil
		}
		return nil, err
	}

	metas := make([]ArchiveMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		archived, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		metas = append(metas, ArchiveMeta{
			ConversationID: archived.ConversationID,
			Summary:        archived.Summary,
			UpdatedAt:      archived.UpdatedAt,
			TurnCount:      len(archived.Turns),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete removes the transcript archived under conversationID.
func (s *Archive) Delete(conversationID string) error {
	if !validArchiveID(conversationID) {
		return ErrTranscriptNotFound
	}
	if err := os.Remove(s.filePath(conversationID)); err != nil {
		if os.IsNotExist(err) {
			return ErrTranscriptNotFound
		}
		return err
	}
	return nil
}

// enforceLimit removes the oldest transcripts beyond MaxTranscripts.
func (s *Archive) enforceLimit() {
	if s.MaxTranscripts <= 0 {
		return
	}
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxTranscripts {
		return
	}
	for _, m := range metas[s.MaxTranscripts:] {
		_ = s.Delete(m.ConversationID)
	}
}

func (s *Archive) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// summarize uses the first human turn.
func summarize(t model.Transcript) string {
	for _, turn := range t.Turns() {
		if turn.Role == model.RoleHuman && strings.TrimSpace(turn.Content) != "" {
			return util.Preview(turn.Content, 60)
		}
	}
	return "Empty conversation"
}

// validArchiveID rejects ids that would escape BaseDir.
func validArchiveID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}
