package resolve

import (
	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/extract"
)

// Kind enumerates the Result variants.
type Kind int

const (
	KindExact Kind = iota + 1
	KindFuzzy
	KindAmbiguous
	KindUnresolved
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindFuzzy:
		return "fuzzy"
	case KindAmbiguous:
		return "ambiguous"
	case KindUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Result is one of Exact, Fuzzy, Ambiguous or Unresolved. The set is closed:
// only this package can add variants.
type Result interface {
	Kind() Kind
	sealed()
}

// Exact is a catalog entry whose id equals a code read off the label.
type Exact struct {
	Entry catalog.Entry
}

// Fuzzy is a unique name-token match.
type Fuzzy struct {
	Entry catalog.Entry
	Score int
}

// Candidate is a scored entry.
type Candidate struct {
	Entry catalog.Entry
	Score int
}

// Reason explains why a result is Ambiguous.
type Reason string

const (
	ReasonTie              Reason = "tie"
	ReasonBelowThreshold   Reason = "below_threshold"
	ReasonDuplicateInBatch Reason = "duplicate_in_mixed_batch"
)

// Ambiguous lists the candidates a human must choose from, best first.
type Ambiguous struct {
	Candidates []Candidate
	Reason     Reason
}

// Unresolved carries whatever was read so a new product can be proposed.
type Unresolved struct {
	BestGuess extract.Fields
}

func (Exact) Kind() Kind      { return KindExact }
func (Fuzzy) Kind() Kind      { return KindFuzzy }
func (Ambiguous) Kind() Kind  { return KindAmbiguous }
func (Unresolved) Kind() Kind { return KindUnresolved }

func (Exact) sealed()      {}
func (Fuzzy) sealed()      {}
func (Ambiguous) sealed()  {}
func (Unresolved) sealed() {}

// Match dispatches r to the handler for its variant. A nil Result is treated
// as an empty Unresolved.
func Match[T any](
	r Result,
	exact func(Exact) T,
	fuzzy func(Fuzzy) T,
	ambiguous func(Ambiguous) T,
	unresolved func(Unresolved) T,
) T {
	switch v := r.(type) {
	case Exact:
		return exact(v)
	case Fuzzy:
		return fuzzy(v)
	case Ambiguous:
		return ambiguous(v)
	case Unresolved:
		return unresolved(v)
	default:
		return unresolved(Unresolved{})
	}
}

// EntityOf returns the resolved entry for Exact and Fuzzy results.
func EntityOf(r Result) (catalog.Entry, bool) {
	type found struct {
		e  catalog.Entry
		ok bool
	}
	f := Match(r,
		func(e Exact) found { return found{e.Entry, true} },
		func(f Fuzzy) found { return found{f.Entry, true} },
		func(Ambiguous) found { return found{} },
		func(Unresolved) found { return found{} },
	)
	return f.e, f.ok
}

// IsResolved reports whether r names a single entity.
func IsResolved(r Result) bool {
	_, ok := EntityOf(r)
	return ok
}
