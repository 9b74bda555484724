package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanURLsReplacedWithDomain(t *testing.T) {
	got := Clean("see https://example.com/some/deep/path?q=1 for details")
	assert.Equal(t, "see example.com for details", got)
}

func TestCleanStripsMarkdownKeepsPayload(t *testing.T) {
	input := "# Title\n\nSome *bold* and _quiet_ text with `inline code`.\n" +
		"```go\nfmt.Println(\"hi\")\n```\n" +
		"> a quote\n- item one\n1. item two\n" +
		"[link text](https://example.com) ![alt](https://example.com/img.png)"

	got := Clean(input)

	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "*")
	assert.NotContains(t, got, "`")
	assert.NotContains(t, got, "[")
	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "bold")
	assert.Contains(t, got, "inline code")
	assert.Contains(t, got, "fmt.Println")
	assert.Contains(t, got, "a quote")
	assert.Contains(t, got, "item one")
	assert.Contains(t, got, "item two")
	assert.Contains(t, got, "link text")
}

func TestCleanLinkTargetsWithPaths(t *testing.T) {
	got := Clean("see [docs](https://example.com/a) and ![alt](https://example.com/b.png)")
	assert.Equal(t, "see docs and alt", got)
}

func TestCleanRemovesEmoji(t *testing.T) {
	got := Clean("ship it \U0001F680\U0001F389 done ✔")
	assert.Equal(t, "ship it done", got)
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	got := Clean("  a\n\nb\t\tc   d  ")
	assert.Equal(t, "a b c d", got)
}

func TestCleanEmpty(t *testing.T) {
	assert.Equal(t, "", Clean(""))
	assert.Equal(t, "", Clean("   \n\t  "))
}

func TestCleanDeterministic(t *testing.T) {
	input := "## Heading\nhttps://a.example.org/x *emphasis* \U0001F600\nline  two"
	first := Clean(input)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Clean(input))
	}
}

func TestHashStableAcrossRuns(t *testing.T) {
	a := Hash(Clean("Same *content* here"))
	b := Hash(Clean("Same *content*  here\n"))
	assert.Equal(t, a, b, "hash must be stable modulo formatting noise")
	assert.Len(t, a, 64)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "hél", Truncate("héllo", 3), "truncation respects rune boundaries")

	long := strings.Repeat("x", MaxContentLength+100)
	assert.Len(t, Truncate(long, MaxContentLength), MaxContentLength)
}
