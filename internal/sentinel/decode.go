// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sentinel

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// DoneMarker terminates a stream successfully.
	DoneMarker = "[DONE]"

	// ErrorPrefix starts a terminal in-band failure. The rest of the
	// payload is the message.
	ErrorPrefix = "[ERROR]"
)

// ErrMalformedPayload is returned when a text payload is not valid
// percent-encoded UTF-8.
var ErrMalformedPayload = errors.New("malformed stream payload")

// Kind is the classification of a payload.
type Kind int

const (
	// KindText carries the cumulative answer text.
	KindText Kind = iota
	// KindDone marks successful completion.
	KindDone
	// KindError carries a terminal failure message.
	KindError
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one classified payload.
type Event struct {
	Kind Kind
	// Text is the decoded answer for KindText and the message for KindError.
	Text string
}

// Decode classifies a single frame payload.
//
// Precedence: an exact DoneMarker wins, then an ErrorPrefix match, and
// anything else is percent-decoded text. Error messages are passed through
// as-is; only text payloads are decoded.
func Decode(payload string) (Event, error) {
	if payload == DoneMarker {
		return Event{Kind: KindDone}, nil
	}

	if rest, ok := strings.CutPrefix(payload, ErrorPrefix); ok {
		return Event{Kind: KindError, Text: rest}, nil
	}

	text, err := decodeComponent(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: KindText, Text: text}, nil
}

// decodeComponent undoes URI component encoding. Unlike query decoding a
// '+' stays a literal plus sign.
func decodeComponent(s string) (string, error) {
	if !strings.Contains(s, "%") {
		if !utf8.ValidString(s) {
			return "", fmt.Errorf("%w: invalid UTF-8", ErrMalformedPayload)
		}
		return s, nil
	}

	decoded, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !utf8.ValidString(decoded) {
		return "", fmt.Errorf("%w: escapes do not form valid UTF-8", ErrMalformedPayload)
	}
	return decoded, nil
}

// Encode applies URI component encoding to text so that Decode returns it
// unchanged. Spaces become %20, never '+'.
func Encode(text string) string {
	return strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
