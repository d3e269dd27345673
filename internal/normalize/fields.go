package normalize

import "github.com/MeKo-Tech/labelscan/internal/extract"

// Fields is the canonical form of extract.Fields.
type Fields struct {
	BatchCode         string `json:"batch_code,omitempty"`
	ExpiryDateISO     string `json:"expiry_date_iso,omitempty"`
	ExpiryDateDisplay string `json:"expiry_date_display,omitempty"`
}

// FromExtracted normalizes the batch code and expiry date of f. An expiry that
// does not parse is dropped.
func FromExtracted(f extract.Fields) Fields {
	out := Fields{}
	if f.BatchCode != "" {
		out.BatchCode = BatchCode(f.BatchCode)
	}
	if d, ok := ParseDate(f.ExpiryDate); ok {
		out.ExpiryDateISO = d.ISO()
		out.ExpiryDateDisplay = d.Display()
	}
	return out
}
