package pipeline

import (
	"context"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
)

// NeedsSecondPass reports whether the resolved primary product shares the
// pallet with at least one other distinct product id.
func NeedsSecondPass(primary Outcome, palletProductIDs []string) bool {
	e, ok := resolve.EntityOf(primary.Result)
	if !ok {
		return false
	}
	for _, id := range palletProductIDs {
		id = strings.TrimSpace(id)
		if id != "" && !strings.EqualFold(id, e.ID) {
			return true
		}
	}
	return false
}

// ResolveMixed resolves the secondary label of a mixed pallet as a fresh,
// independent request; nothing from the primary pass is reused. When the
// secondary resolves to the same entity as the primary, the secondary result
// is replaced by an Ambiguous flagging that entity instead of being merged.
func (p *Pipeline) ResolveMixed(
	ctx context.Context,
	palletID string,
	primary Outcome,
	secondary Request,
	snap catalog.Snapshot,
) (MixedBatchContext, error) {
	if p == nil {
		return MixedBatchContext{}, ErrNilPipeline
	}
	sec, err := p.Resolve(ctx, secondary, snap)
	if err != nil {
		return MixedBatchContext{}, err
	}

	mixed := MixedBatchContext{PalletID: palletID, Primary: primary, Secondary: sec}
	pe, ok1 := resolve.EntityOf(primary.Result)
	se, ok2 := resolve.EntityOf(sec.Result)
	if ok1 && ok2 && strings.EqualFold(pe.ID, se.ID) {
		score := 0
		if f, ok := sec.Result.(resolve.Fuzzy); ok {
			score = f.Score
		}
		p.logger.Info("mixed pallet labels resolved to the same product",
			"pallet", palletID, "id", se.ID)
		mixed.Secondary.Result = resolve.Ambiguous{
			Candidates: []resolve.Candidate{{Entry: se, Score: score}},
			Reason:     resolve.ReasonDuplicateInBatch,
		}
		mixed.Secondary.Problem = AmbiguousMatch
		mixed.Secondary.Proposal = nil
	}
	return mixed, nil
}
