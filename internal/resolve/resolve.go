// Package resolve maps what was read off a label onto a catalog entry. An
// exact code match always wins; otherwise product-name words are scored
// against catalog names and only a clearly unique winner is accepted. The
// resolver prefers reporting Ambiguous or Unresolved over guessing.
package resolve

import (
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/extract"
	"github.com/MeKo-Tech/labelscan/internal/normalize"
)

const (
	// DefaultMinUniqueScore is the score a single entry needs to win alone.
	DefaultMinUniqueScore = 2
	// DefaultMinGap is the lead over the runner-up that also settles a match.
	DefaultMinGap = 2
	// DefaultMinGapTopScore is the minimum top score for the gap rule.
	DefaultMinGapTopScore = 3
	// MinSignificantTokenLength filters short words out of recognized text.
	MinSignificantTokenLength = 4
)

// Options tunes resolution. Strict disables name scoring entirely.
type Options struct {
	Strict         bool `json:"strict" mapstructure:"strict"`
	MinUniqueScore int  `json:"min_unique_score" mapstructure:"min_unique_score"`
	MinGap         int  `json:"min_gap" mapstructure:"min_gap"`
	MinGapTopScore int  `json:"min_gap_top_score" mapstructure:"min_gap_top_score"`
}

// DefaultOptions returns the standard thresholds with scoring enabled.
func DefaultOptions() Options {
	return Options{
		MinUniqueScore: DefaultMinUniqueScore,
		MinGap:         DefaultMinGap,
		MinGapTopScore: DefaultMinGapTopScore,
	}
}

// Input is what one resolution call knows about the label.
type Input struct {
	// Codes are compared against catalog ids in order.
	Codes []string
	// Text is the recognized label text used for name scoring.
	Text string
	// Fields become the best guess when nothing resolves.
	Fields extract.Fields
}

// FromFields builds an Input from recognized text and its extracted fields.
// Every code candidate on the label is tried, the extracted batch code first,
// so a catalog id printed next to a lot number still matches exactly.
func FromFields(text string, f extract.Fields) Input {
	var codes []string
	for _, c := range append([]string{f.BatchCode}, extract.Codes(text)...) {
		for _, form := range CodeForms(c) {
			if !slices.Contains(codes, form) {
				codes = append(codes, form)
			}
		}
	}
	return Input{Codes: codes, Text: text, Fields: f}
}

// CodeForms returns the distinct comparison forms of a raw code.
func CodeForms(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	forms := make([]string, 0, 3)
	for _, f := range []string{strings.ToUpper(raw), normalize.CleanCode(raw), normalize.BatchCode(raw)} {
		if f != "" && !slices.Contains(forms, f) {
			forms = append(forms, f)
		}
	}
	return forms
}

// Resolve runs exact lookup, then name scoring unless opts.Strict is set.
// It is deterministic for a given input and snapshot.
func Resolve(in Input, snap catalog.Snapshot, opts Options) Result {
	for _, code := range in.Codes {
		for _, form := range CodeForms(code) {
			if e, ok := snap.Lookup(form); ok {
				return Exact{Entry: e}
			}
		}
	}

	if opts.Strict {
		return Unresolved{BestGuess: in.Fields}
	}

	scored := Score(SignificantTokens(in.Text), snap)
	if len(scored) == 0 {
		return Unresolved{BestGuess: in.Fields}
	}

	top := scored[0]
	second := 0
	if len(scored) > 1 {
		second = scored[1].Score
	}

	atThreshold := 0
	for _, c := range scored {
		if c.Score >= opts.MinUniqueScore {
			atThreshold++
		}
	}
	if atThreshold == 1 && top.Score >= opts.MinUniqueScore {
		return Fuzzy(top)
	}
	if top.Score-second >= opts.MinGap && top.Score >= opts.MinGapTopScore {
		return Fuzzy(top)
	}

	reason := ReasonBelowThreshold
	if len(scored) > 1 && top.Score == second {
		reason = ReasonTie
	}
	return Ambiguous{Candidates: scored, Reason: reason}
}

// Score counts, for every entry, how many of tokens appear among its name
// tokens. Only entries scoring above zero are returned, highest first, ties in
// catalog order.
func Score(tokens []string, snap catalog.Snapshot) []Candidate {
	if len(tokens) == 0 {
		return nil
	}
	var out []Candidate
	for _, e := range snap.Entries() {
		n := 0
		for _, t := range tokens {
			if e.HasToken(t) {
				n++
			}
		}
		if n > 0 {
			out = append(out, Candidate{Entry: e, Score: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SignificantTokens folds text into distinct words of at least
// MinSignificantTokenLength runes, skipping label keywords, in reading order.
func SignificantTokens(text string) []string {
	words := catalog.Tokenize(text)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < MinSignificantTokenLength || extract.IsStopWord(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
