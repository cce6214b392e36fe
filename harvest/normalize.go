package harvest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	commentRe     = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
)

// boilerplatePhrases are removed from cleaned text wherever they
// appear. The whitespace collapse that follows mops up the gaps the
// removal leaves behind.
var boilerplatePhrases = []string{
	"Advertisement",
	"Share this story",
}

// CleanText reduces a fragment of markup to single-spaced plain text.
// Script and style blocks lose their contents, comments disappear, and
// every other tag becomes a single space so adjacent words do not
// fuse. Known boilerplate phrases are stripped. The result carries no
// leading, trailing, or repeated whitespace, and running CleanText on
// its own output changes nothing.
func CleanText(s string) string {
	if s == "" {
		return ""
	}

	s = scriptBlockRe.ReplaceAllString(s, " ")
	s = styleBlockRe.ReplaceAllString(s, " ")
	s = commentRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")

	for _, phrase := range boilerplatePhrases {
		s = strings.ReplaceAll(s, phrase, " ")
	}

	return strings.Join(strings.Fields(s), " ")
}

// capText truncates s to at most max bytes without splitting a rune,
// preferring to cut at a word boundary. A non-positive max leaves s
// unchanged.
func capText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if idx := strings.LastIndexByte(s[:cut], ' '); idx > 0 {
		cut = idx
	}
	return strings.TrimRight(s[:cut], " ")
}
