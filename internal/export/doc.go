// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes archived transcripts to shareable files, as
// Markdown with YAML frontmatter or as the raw JSON record.
//
//	archived, err := archive.Load("conv-1")
//	if err != nil {
//		return err
//	}
//	e, err := export.ForFormat("markdown", export.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	path, err := export.WriteFile(".", archived, e)
package export
