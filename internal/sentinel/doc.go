// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sentinel classifies stream frame payloads.
//
// A completion stream carries one of three payload shapes per frame:
// the literal done marker, an error marker followed by a human readable
// message, or the percent-encoded answer accumulated so far. Decode turns
// one payload into a classified Event. It keeps no state between calls.
//
// # Key Types
//
//   - Event: the classified payload
//   - Kind: KindText, KindDone or KindError
//
// # Usage
//
//	ev, err := sentinel.Decode(frame.Data)
//	if err != nil {
//		return err
//	}
//	switch ev.Kind {
//	case sentinel.KindDone:
//		// finalize
//	case sentinel.KindError:
//		// show ev.Text as the failure
//	case sentinel.KindText:
//		// replace the answer with ev.Text
//	}
package sentinel
