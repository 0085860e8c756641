// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small file and text helpers shared by chatstream
// packages.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file replacement with fsync
//   - Preview: Single-line, display-width bounded excerpt of text
//
// # Usage
//
//	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
//	    return err
//	}
//	fmt.Println(util.Preview(answer, 60))
package util
