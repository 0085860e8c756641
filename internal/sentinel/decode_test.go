// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sentinel

import (
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind Kind
		wantText string
	}{
		{"done marker", "[DONE]", KindDone, ""},
		{"error marker", "[ERROR]Something broke", KindError, "Something broke"},
		{"empty error message", "[ERROR]", KindError, ""},
		{"error message is not decoded", "[ERROR]disk 95%25 full", KindError, "disk 95%25 full"},
		{"plain text", "Hello", KindText, "Hello"},
		{"encoded space", "Hello%20world", KindText, "Hello world"},
		{"plus stays literal", "2+2", KindText, "2+2"},
		{"encoded percent", "10%25", KindText, "10%"},
		{"multibyte utf8", "%E4%BD%A0%E5%A5%BD", KindText, "你好"},
		{"encoded newline", "line1%0Aline2", KindText, "line1\nline2"},
		{"done with padding is text", " [DONE]", KindText, " [DONE]"},
		{"done with suffix is text", "[DONE]!", KindText, "[DONE]!"},
		{"lowercase error prefix is text", "[error]nope", KindText, "[error]nope"},
		{"empty payload", "", KindText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.payload)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.payload, err)
			}
			if ev.Kind != tt.wantKind {
				t.Errorf("Decode(%q).Kind = %v, want %v", tt.payload, ev.Kind, tt.wantKind)
			}
			if ev.Text != tt.wantText {
				t.Errorf("Decode(%q).Text = %q, want %q", tt.payload, ev.Text, tt.wantText)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	payloads := []string{
		"%ZZ",
		"100%",
		"%E4%BD",
		"%FF",
	}

	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			_, err := Decode(p)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Decode(%q) error = %v, want ErrMalformedPayload", p, err)
			}
		})
	}
}

// TestDecode_CumulativeFrames checks that each frame decodes on its own;
// the decoder never stitches frames together.
func TestDecode_CumulativeFrames(t *testing.T) {
	frames := []string{"A", "AB", "ABC"}
	var last string
	for _, f := range frames {
		ev, err := Decode(Encode(f))
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", f, err)
		}
		last = ev.Text
	}
	if last != "ABC" {
		t.Errorf("last decoded frame = %q, want %q", last, "ABC")
	}
}

func TestEncode(t *testing.T) {
	in := "Résumé: 50% off + free (shipping) 你好\n"
	enc := Encode(in)

	for _, c := range []string{" ", "+", "\n"} {
		if strings.Contains(enc, c) {
			t.Errorf("Encode(%q) = %q still contains %q", in, enc, c)
		}
	}

	ev, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode(Encode(x)) error = %v", err)
	}
	if ev.Text != in {
		t.Errorf("Decode(Encode(x)) = %q, want %q", ev.Text, in)
	}
}

func TestKindString(t *testing.T) {
	if KindText.String() != "text" || KindDone.String() != "done" || KindError.String() != "error" {
		t.Errorf("unexpected kind names: %s %s %s", KindText, KindDone, KindError)
	}
	if Kind(42).String() != "kind(42)" {
		t.Errorf("Kind(42).String() = %q", Kind(42).String())
	}
}
