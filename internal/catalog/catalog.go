// Package catalog holds the read-only product catalog snapshot the resolver
// matches against, plus loaders that build one from a file or a database.
package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinNameTokenLength is the shortest word kept as a name token.
const MinNameTokenLength = 3

// Item is one catalog row as supplied by the host application.
type Item struct {
	ID   string `json:"id" yaml:"id" mapstructure:"id"`
	Name string `json:"name" yaml:"name" mapstructure:"name"`
}

// Entry is a catalog item prepared for matching.
type Entry struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	NameTokens map[string]struct{} `json:"-"`
}

// HasToken reports whether the folded word tok is one of the entry's name tokens.
func (e Entry) HasToken(tok string) bool {
	_, ok := e.NameTokens[tok]
	return ok
}

// Snapshot is an ordered, immutable view of the catalog for one resolution
// call. The zero value is an empty catalog.
type Snapshot struct {
	entries []Entry
	byID    map[string]int
}

// NewSnapshot builds a snapshot from items, preserving their order. Items with
// an empty id are skipped; for duplicate ids the first one wins.
func NewSnapshot(items []Item) Snapshot {
	s := Snapshot{
		entries: make([]Entry, 0, len(items)),
		byID:    make(map[string]int, len(items)),
	}
	for _, it := range items {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			continue
		}
		key := strings.ToUpper(id)
		if _, dup := s.byID[key]; dup {
			continue
		}
		s.byID[key] = len(s.entries)
		s.entries = append(s.entries, NewEntry(id, it.Name))
	}
	return s
}

// NewEntry tokenizes name into an Entry.
func NewEntry(id, name string) Entry {
	toks := Tokenize(name)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		if len([]rune(t)) >= MinNameTokenLength {
			set[t] = struct{}{}
		}
	}
	return Entry{ID: id, Name: name, NameTokens: set}
}

// Len returns the number of entries.
func (s Snapshot) Len() int { return len(s.entries) }

// Entries returns the entries in catalog order. The slice must not be modified.
func (s Snapshot) Entries() []Entry { return s.entries }

// Lookup finds an entry by id, ignoring case and surrounding whitespace.
func (s Snapshot) Lookup(id string) (Entry, bool) {
	i, ok := s.byID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Index returns the catalog position of id, or -1.
func (s Snapshot) Index(id string) int {
	i, ok := s.byID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return -1
	}
	return i
}

// IDs returns the entry ids in catalog order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.ID
	}
	return ids
}

// Fold lowercases s and strips diacritics so "Crème" and "creme" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokenize splits s on anything that is not a letter or digit and folds each
// word. Word length filtering is left to the caller.
func Tokenize(s string) []string {
	words := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return words
}
