// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local state chatstream keeps per profile:
// a key-value store for values such as the visitor identifier and an
// archive of finished transcripts.
//
// # Key Types
//
//   - KV: Get/Set/Delete interface implemented by every store
//   - SQLiteStore: Durable store backed by a single-file SQLite database
//   - MemoryStore: In-process store for tests and ephemeral sessions
//   - Archive: One JSON file per conversation transcript
//
// # Usage
//
//	store, err := storage.OpenSQLite("~/.chatstream/state.db")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	if err := store.Set(ctx, "key", "value"); err != nil {
//		return err
//	}
//	v, err := store.Get(ctx, "key")
//	if errors.Is(err, storage.ErrNotFound) {
//		// absent
//	}
package storage
