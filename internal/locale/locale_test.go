// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package locale

import "testing"

func TestFor(t *testing.T) {
	tests := []struct {
		tag  string
		want Catalog
	}{
		{"", english},
		{"en", english},
		{"en-GB", english},
		{"zh-CN", chinese},
		{"zh", chinese},
		{"es", spanish},
		{"es-MX", spanish},
		{"es_ES.UTF-8", spanish},
		{"fr-FR", english},
		{"C", english},
		{"de;q=0.9, es;q=0.8", spanish},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got := For(tt.tag)
			if got != tt.want {
				t.Errorf("For(%q).UsageLimit = %q, want %q", tt.tag, got.UsageLimit, tt.want.UsageLimit)
			}
		})
	}
}

func TestCatalogsAreDistinctAndComplete(t *testing.T) {
	for _, s := range supported {
		if s.catalog.GenericFailure == "" || s.catalog.UsageLimit == "" {
			t.Errorf("catalog %s has an empty message", s.tag)
		}
		if s.catalog.GenericFailure == s.catalog.UsageLimit {
			t.Errorf("catalog %s: usage limit message must differ from the generic one", s.tag)
		}
	}
}

func TestTags(t *testing.T) {
	tags := Tags()
	if len(tags) != 3 || tags[0] != "en" {
		t.Errorf("Tags() = %v", tags)
	}
}
