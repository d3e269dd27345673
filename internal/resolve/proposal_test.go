package resolve

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/extract"
)

func TestPropose(t *testing.T) {
	u := Unresolved{BestGuess: extract.Fields{
		NameGuess:  "SMOKED salmon",
		ExpiryDate: "2026-03-15",
		BatchCode:  "l0t-1O1",
	}}

	p := Propose(u, testSnapshot(), "")
	assert.Equal(t, Proposal{
		SuggestedID:     "PROD-00013",
		SuggestedName:   "Smoked Salmon",
		SuggestedExpiry: "15/03/2026",
		SuggestedBatch:  "L0T-101",
	}, p)
}

func TestPropose_PreferredID(t *testing.T) {
	snap := testSnapshot()

	assert.Equal(t, "PROD-00042", Propose(Unresolved{}, snap, "PROD-00042").SuggestedID)
	assert.Equal(t, "PROD-00013", Propose(Unresolved{}, snap, "prod-00007").SuggestedID)
}

func TestPropose_EmptyGuess(t *testing.T) {
	p := Propose(Unresolved{}, catalog.Snapshot{}, "")
	assert.Equal(t, Proposal{SuggestedID: "PROD-00001"}, p)
}

func TestIsProposedID(t *testing.T) {
	assert.True(t, IsProposedID("PROD-09999"))
	assert.True(t, IsProposedID(" prod-1 "))
	assert.False(t, IsProposedID("PROD-"))
	assert.False(t, IsProposedID("PROD-12A"))
	assert.False(t, IsProposedID("SKU-00001"))
	assert.False(t, IsProposedID(""))
}

func TestNextID_IgnoresOtherSchemes(t *testing.T) {
	snap := catalog.NewSnapshot([]catalog.Item{
		{ID: "SKU-99999", Name: "x"},
		{ID: "prod-00003", Name: "y"},
		{ID: "PROD-ABC", Name: "z"},
	})
	assert.Equal(t, "PROD-00004", NextID(snap))
}

func TestToView(t *testing.T) {
	snap := testSnapshot()
	e, _ := snap.Lookup("PROD-00007")

	v := ToView(Fuzzy{Entry: e, Score: 2})
	assert.Equal(t, "fuzzy", v.Kind)
	require.NotNil(t, v.Entity)
	assert.Equal(t, "PROD-00007", v.Entity.ID)
	assert.Equal(t, 2, v.Entity.Score)

	v = ToView(Ambiguous{Candidates: []Candidate{{Entry: e, Score: 1}}, Reason: ReasonTie})
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"ambiguous","candidates":[{"id":"PROD-00007","name":"Organic Apples","score":1}],"reason":"tie"}`, string(data))

	v = ToView(Unresolved{})
	assert.Nil(t, v.BestGuess)
	v = ToView(Unresolved{BestGuess: extract.Fields{NameGuess: "Box"}})
	require.NotNil(t, v.BestGuess)
	assert.Equal(t, "Box", v.BestGuess.NameGuess)
}
