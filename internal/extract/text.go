package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// replacements folds typographic punctuation OCR engines like to emit into
// the ASCII forms the field patterns expect.
var replacements = strings.NewReplacer(
	"\u2018", "'",
	"\u2019", "'",
	"\u201C", "\"",
	"\u201D", "\"",
	"\u2010", "-",
	"\u2011", "-",
	"\u2012", "-",
	"\u2013", "-",
	"\u2014", "-",
	"\u2212", "-",
	"\u00A0", " ",
	"\u2009", " ",
)

var wsRe = regexp.MustCompile(`\s+`)

// Clean prepares raw recognizer output for extraction: NFKC normalization,
// zero-width and control character removal, dash/quote folding and whitespace
// collapsing.
func Clean(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFKC.String(s)
	s = removeInvisible(s)
	s = replacements.Replace(s)
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func removeInvisible(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF':
			continue
		case '\n', '\r', '\t':
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
