// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"

	"github.com/jeranaias/chatstream/internal/storage"
)

// JSONExporter writes the archived record as indented JSON, readable back
// into a storage.ArchivedTranscript.
type JSONExporter struct{}

func (JSONExporter) Export(t *storage.ArchivedTranscript) ([]byte, error) {
	if t == nil {
		return nil, errors.New("transcript is nil")
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (JSONExporter) Ext() string { return ".json" }
