package resolve

import "github.com/MeKo-Tech/labelscan/internal/extract"

// EntityView is the serialized form of a catalog entry in a result.
type EntityView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score,omitempty"`
}

// View flattens a Result for JSON output.
type View struct {
	Kind       string          `json:"kind"`
	Entity     *EntityView     `json:"entity,omitempty"`
	Candidates []EntityView    `json:"candidates,omitempty"`
	Reason     Reason          `json:"reason,omitempty"`
	BestGuess  *extract.Fields `json:"best_guess,omitempty"`
}

// ToView converts r for serialization.
func ToView(r Result) View {
	return Match(r,
		func(e Exact) View {
			return View{Kind: KindExact.String(), Entity: &EntityView{ID: e.Entry.ID, Name: e.Entry.Name}}
		},
		func(f Fuzzy) View {
			return View{Kind: KindFuzzy.String(), Entity: &EntityView{ID: f.Entry.ID, Name: f.Entry.Name, Score: f.Score}}
		},
		func(a Ambiguous) View {
			cands := make([]EntityView, len(a.Candidates))
			for i, c := range a.Candidates {
				cands[i] = EntityView{ID: c.Entry.ID, Name: c.Entry.Name, Score: c.Score}
			}
			return View{Kind: KindAmbiguous.String(), Candidates: cands, Reason: a.Reason}
		},
		func(u Unresolved) View {
			v := View{Kind: KindUnresolved.String()}
			if !u.BestGuess.IsEmpty() {
				g := u.BestGuess
				v.BestGuess = &g
			}
			return v
		},
	)
}
