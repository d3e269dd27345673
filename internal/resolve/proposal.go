package resolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/normalize"
)

// ProposedIDPrefix is the id scheme used for suggested new products.
const ProposedIDPrefix = "PROD-"

var proposedIDRe = regexp.MustCompile(`(?i)^PROD-(\d+)$`)

// Proposal is a suggested catalog entry for an unresolved label. The resolver
// never creates it; the host application decides.
type Proposal struct {
	SuggestedID     string `json:"suggested_id"`
	SuggestedName   string `json:"suggested_name,omitempty"`
	SuggestedExpiry string `json:"suggested_expiry,omitempty"`
	SuggestedBatch  string `json:"suggested_batch,omitempty"`
}

// Propose builds a creation proposal from u. A non-empty preferredID that is
// not already in the snapshot is used as the suggested id (for example the id
// carried by a structured code); otherwise the next free PROD-NNNNN is chosen.
func Propose(u Unresolved, snap catalog.Snapshot, preferredID string) Proposal {
	p := Proposal{SuggestedID: NextID(snap)}
	if id := strings.TrimSpace(preferredID); id != "" {
		if _, taken := snap.Lookup(id); !taken {
			p.SuggestedID = id
		}
	}

	if name := strings.TrimSpace(u.BestGuess.NameGuess); name != "" {
		p.SuggestedName = cases.Title(language.English).String(strings.ToLower(name))
	}
	if d, ok := normalize.ParseDate(u.BestGuess.ExpiryDate); ok {
		p.SuggestedExpiry = d.Display()
	}
	if u.BestGuess.BatchCode != "" {
		p.SuggestedBatch = normalize.BatchCode(u.BestGuess.BatchCode)
	}
	return p
}

// IsProposedID reports whether s follows the PROD-<digits> id scheme.
func IsProposedID(s string) bool {
	return proposedIDRe.MatchString(strings.TrimSpace(s))
}

// NextID returns PROD- followed by one more than the highest numeric PROD id
// in snap, zero-padded to five digits.
func NextID(snap catalog.Snapshot) string {
	highest := 0
	for _, e := range snap.Entries() {
		m := proposedIDRe.FindStringSubmatch(e.ID)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%05d", ProposedIDPrefix, highest+1)
}
