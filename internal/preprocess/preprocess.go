// Package preprocess is the deterministic text-cleaning pipeline run
// before hashing and before embedding. Because the same pipeline feeds
// both, content-hash comparisons stay stable across runs.
package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxContentLength is the character budget for embedded text.
const MaxContentLength = 5000

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

	// Markdown syntax. Markers are removed, the human-readable payload
	// is kept (fence contents, link text, emphasised words).
	fenceMarker    = regexp.MustCompile("(?m)^```[^\n]*$")
	inlineCode     = regexp.MustCompile("`([^`]*)`")
	imageSyntax    = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkSyntax     = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headerMarker   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasisMarker = regexp.MustCompile(`(\*{1,3}|_{1,3}|~~)([^*_~]+)(\*{1,3}|_{1,3}|~~)`)
	quoteMarker    = regexp.MustCompile(`(?m)^>\s?`)
	listMarker     = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)

	whitespace = regexp.MustCompile(`\s+`)
)

// Clean normalises text for hashing and embedding. Pure and
// deterministic: identical input always yields identical output.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	// Link and image syntax goes first: the URL pass must not see the
	// markdown target, or it swallows the closing paren and leaves the
	// brackets behind.
	text = imageSyntax.ReplaceAllString(text, "$1")
	text = linkSyntax.ReplaceAllString(text, "$1")

	// Remaining bare URLs carry little semantic weight; keep the bare
	// domain for residual context.
	text = urlPattern.ReplaceAllStringFunc(text, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return ""
		}
		return u.Host
	})

	text = fenceMarker.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = headerMarker.ReplaceAllString(text, "")
	text = emphasisMarker.ReplaceAllString(text, "$2")
	text = quoteMarker.ReplaceAllString(text, "")
	text = listMarker.ReplaceAllString(text, "")

	text = stripSymbols(text)

	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Hash returns the hex sha256 of text. Sync adapters hash the cleaned,
// truncated content so unchanged items can be skipped.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Truncate cuts text to at most n runes, respecting rune boundaries.
func Truncate(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}

// stripSymbols removes emoji and pictographic code points.
func stripSymbols(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isSymbolRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isSymbolRune(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoji, symbols, pictographs
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r == 0x200D: // zero-width joiner
		return true
	case unicode.Is(unicode.So, r):
		return true
	}
	return false
}
