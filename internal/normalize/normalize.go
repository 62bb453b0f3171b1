package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"unicode"
)

var (
	markupProbePattern = regexp.MustCompile(`(?is)<[a-z!/][^>]*>`)
	scriptPattern      = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	stylePattern       = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	noscriptPattern    = regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`)
	commentPattern     = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockTagPattern    = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|tr|table|h[1-6]|section|article|header|footer|blockquote)\b[^>]*/?>`)
	tagPattern         = regexp.MustCompile(`(?s)<[^>]+>`)
)

// Normalize produces the canonical text form used for hashing and for
// diff input. Markup is reduced to visible text, zero-width and control
// characters are dropped, and whitespace is collapsed per line so that
// trailing spaces and blank lines never register as content changes.
// Line boundaries survive so stored diffs stay line-meaningful.
func Normalize(raw string) string {
	text := raw
	if looksLikeMarkup(text) {
		text = stripMarkup(text)
	}
	text = cleanRunes(text)

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(line), " ")
		if clean == "" {
			continue
		}
		kept = append(kept, clean)
	}

	return strings.Join(kept, "\n")
}

// Fingerprint returns the lowercase hex sha256 of normalized text. The
// empty string hashes to the standard empty-input digest so a page that
// becomes legitimately empty still carries an identity.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func looksLikeMarkup(s string) bool {
	return markupProbePattern.MatchString(s)
}

func stripMarkup(s string) string {
	out := scriptPattern.ReplaceAllString(s, " ")
	out = stylePattern.ReplaceAllString(out, " ")
	out = noscriptPattern.ReplaceAllString(out, " ")
	out = commentPattern.ReplaceAllString(out, " ")
	out = blockTagPattern.ReplaceAllString(out, "\n")
	out = tagPattern.ReplaceAllString(out, " ")
	return html.UnescapeString(out)
}

func cleanRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune('\n')
		case r == '\t' || r == '\r':
			b.WriteRune(' ')
		case isZeroWidth(r):
		case unicode.IsControl(r):
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return false
}
