// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package locale holds the user-visible messages a chat turn ends with when
// its stream fails, and picks the catalog that best fits a language tag.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

// Catalog is the set of failure messages for one language.
type Catalog struct {
	// GenericFailure replaces an empty answer when a turn fails for any
	// reason other than a usage limit.
	GenericFailure string

	// UsageLimit is shown when the backend rejects a turn because the
	// account has run out of quota.
	UsageLimit string
}

var (
	english = Catalog{
		GenericFailure: "Sorry, something went wrong while generating a response. Please try again.",
		UsageLimit:     "You have reached the usage limit for your plan. Upgrade your plan to keep chatting.",
	}

	chinese = Catalog{
		GenericFailure: "抱歉，生成回答时出现了问题，请稍后重试。",
		UsageLimit:     "您已达到当前套餐的使用上限，请升级套餐后继续对话。",
	}

	spanish = Catalog{
		GenericFailure: "Lo sentimos, algo salió mal al generar la respuesta. Inténtalo de nuevo.",
		UsageLimit:     "Has alcanzado el límite de uso de tu plan. Mejora tu plan para seguir conversando.",
	}
)

// supported lists the catalogs in matcher order; the first is the fallback.
var supported = []struct {
	tag     language.Tag
	catalog Catalog
}{
	{language.English, english},
	{language.SimplifiedChinese, chinese},
	{language.Spanish, spanish},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(supported))
	for i, s := range supported {
		tags[i] = s.tag
	}
	return language.NewMatcher(tags)
}()

// Default returns the English catalog.
func Default() Catalog {
	return english
}

// For returns the catalog closest to tag. Tags may be BCP 47 ("zh-CN"),
// POSIX style ("es_ES.UTF-8") or an Accept-Language list. Unknown or empty
// tags get the English catalog.
func For(tag string) Catalog {
	tags, _, err := language.ParseAcceptLanguage(normalize(tag))
	if err != nil || len(tags) == 0 {
		return english
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return english
	}
	return supported[idx].catalog
}

// Tags returns the supported language tags.
func Tags() []string {
	out := make([]string, len(supported))
	for i, s := range supported {
		out[i] = s.tag.String()
	}
	return out
}

// normalize strips a POSIX encoding suffix and converts underscores.
func normalize(tag string) string {
	if i := strings.IndexAny(tag, ".@"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ReplaceAll(tag, "_", "-")
}
