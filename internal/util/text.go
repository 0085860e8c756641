// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Preview collapses whitespace runs (including newlines) to single spaces
// and truncates the result to maxWidth terminal cells, ending in "..."
// when truncated. Wide CJK runes count as two cells.
func Preview(s string, maxWidth int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
