// Package extract pulls candidate batch codes, expiry dates and a product name
// guess out of recognized label text. Every field is optional and extracted
// independently; nothing here validates or normalizes the values.
package extract

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Fields holds the raw strings found on a label. Empty means absent.
type Fields struct {
	BatchCode  string `json:"batch_code,omitempty"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	NameGuess  string `json:"name_guess,omitempty"`
}

// HasAny reports whether a batch code or an expiry date was found. A name guess
// alone does not count.
func (f Fields) HasAny() bool {
	return f.BatchCode != "" || f.ExpiryDate != ""
}

// IsEmpty reports whether nothing at all was found.
func (f Fields) IsEmpty() bool {
	return f.BatchCode == "" && f.ExpiryDate == "" && f.NameGuess == ""
}

// MaxNameTokens caps the name guess.
const MaxNameTokens = 6

// StopWords end a name guess and are ignored as significant tokens.
var StopWords = map[string]struct{}{
	"batch":  {},
	"lot":    {},
	"exp":    {},
	"expiry": {},
	"bbe":    {},
	"best":   {},
	"before": {},
	"use":    {},
	"by":     {},
}

// IsStopWord reports whether the lowercase word w is a label keyword.
func IsStopWord(w string) bool {
	_, ok := StopWords[w]
	return ok
}

const datePattern = `\d{1,2}[/.\-]\d{1,2}[/.\-](?:\d{4}|\d{2})` +
	`|\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2}` +
	`|\d{1,2}(?:st|nd|rd|th)?[\s\-]+` + monthPattern + `\.?,?[\s\-]+(?:\d{4}|\d{2})`

const monthPattern = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	labeledBatchRe = regexp.MustCompile(`(?i)\b(?:BATCH\s*CODE|BATCH|LOT\s*NO|LOT)\b\.?\s*[:#.]?\s*([A-Z0-9][A-Z0-9/-]{2,})`)
	prodCodeRe     = regexp.MustCompile(`(?i)\bPROD-[A-Z0-9-]+`)
	codeTokenRe    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/-]{5,}$`)

	// Dates may be glued to a label ("EXP15/03/2026"), so the unlabeled
	// patterns only require that no digit touches either end.
	labeledExpiryRe = regexp.MustCompile(`(?i)\b(?:EXPIRY(?:\s*DATE)?|EXP|BEST\s+BEFORE(?:\s+END)?|USE\s+BY|BBE)[\s:.\-]*(` + datePattern + `)`)
	dmyRe           = regexp.MustCompile(`(?:^|\D)(\d{1,2}[/.\-]\d{1,2}[/.\-](?:\d{4}|\d{2}))(?:\D|$)`)
	ymdRe           = regexp.MustCompile(`(?:^|\D)(\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2})(?:\D|$)`)
	textualDateRe   = regexp.MustCompile(`(?i)(?:^|\D)(\d{1,2}(?:st|nd|rd|th)?[\s\-]+` + monthPattern + `\.?,?[\s\-]+(?:\d{4}|\d{2}))(?:\D|$)`)
)

// Extract runs all field extractions over text after cleaning it.
func Extract(text string) Fields {
	text = Clean(text)
	return Fields{
		BatchCode:  Batch(text),
		ExpiryDate: Expiry(text),
		NameGuess:  NameGuess(text),
	}
}

// Batch returns the best batch code candidate: a value following a batch/lot
// label, then a PROD- code, then any long token containing '-' or '/' that
// does not read as a date.
func Batch(text string) string {
	if codes := codeCandidates(text); len(codes) > 0 {
		return codes[0]
	}
	return ""
}

// Codes returns every code candidate on the label in Batch's priority order,
// without duplicates. A label carrying both a lot number and a catalog id
// yields both.
func Codes(text string) []string {
	return codeCandidates(Clean(text))
}

func codeCandidates(text string) []string {
	var codes []string
	add := func(c string) {
		if c != "" && !slices.ContainsFunc(codes, func(have string) bool { return strings.EqualFold(have, c) }) {
			codes = append(codes, c)
		}
	}

	for _, m := range labeledBatchRe.FindAllStringSubmatch(text, -1) {
		v := strings.Trim(m[1], "-/")
		if len(v) < 3 || IsStopWord(strings.ToLower(v)) || looksLikeDate(v) {
			continue
		}
		add(v)
	}

	for _, m := range prodCodeRe.FindAllString(text, -1) {
		add(strings.ToUpper(strings.TrimRight(m, "-")))
	}

	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ".,;:()[]{}\"'")
		if !codeTokenRe.MatchString(tok) || !strings.ContainsAny(tok, "-/") {
			continue
		}
		if looksLikeDate(tok) {
			continue
		}
		add(tok)
	}

	return codes
}

// Expiry returns the raw expiry date string: a date following an expiry label,
// then the first day-first numeric date, then an ISO-ordered date, then a
// textual "15 Mar 2026" date.
func Expiry(text string) string {
	if m := labeledExpiryRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, re := range []*regexp.Regexp{dmyRe, ymdRe, textualDateRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// NameGuess joins up to MaxNameTokens leading words, stopping at the first
// label keyword, including one glued to its value as in "EXP:15/03/2026".
// Non-alphanumeric characters are stripped from each word.
func NameGuess(text string) string {
	words := make([]string, 0, MaxNameTokens)
	for _, raw := range strings.Fields(text) {
		if len(words) == MaxNameTokens {
			break
		}
		w := stripNonAlnum(raw)
		if w == "" {
			continue
		}
		if startsWithKeyword(w) {
			break
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

func stripNonAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// startsWithKeyword reports whether w is a label keyword or its leading
// letters are one, followed by a digit.
func startsWithKeyword(w string) bool {
	end := strings.IndexFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(w)
	}
	return end > 0 && IsStopWord(strings.ToLower(w[:end]))
}

// looksLikeDate reports whether tok contains a numeric date anywhere.
func looksLikeDate(tok string) bool {
	return dmyRe.MatchString(tok) || ymdRe.MatchString(tok)
}
