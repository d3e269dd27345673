package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_LabeledLabel(t *testing.T) {
	got := Extract("BATCH CODE: LOT-2026-0113-001 EXP 15/03/2026")
	assert.Equal(t, "LOT-2026-0113-001", got.BatchCode)
	assert.Equal(t, "15/03/2026", got.ExpiryDate)
	assert.Empty(t, got.NameGuess)
	assert.True(t, got.HasAny())
}

func TestExtract_ProductCodeLabel(t *testing.T) {
	got := Extract("PROD-00007 Organic Apples EXP 2026-03-15")
	assert.Equal(t, "PROD-00007", got.BatchCode)
	assert.Equal(t, "2026-03-15", got.ExpiryDate)
	assert.Equal(t, "PROD00007 Organic Apples", got.NameGuess)
}

func TestBatch(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"batch label", "Batch: A1B2C3", "A1B2C3"},
		{"batch hash", "BATCH #XY-77", "XY-77"},
		{"lot no label", "LOT NO. 88421", "88421"},
		{"lot label", "lot 4421/7", "4421/7"},
		{"label value too short", "LOT 12 PROD-9", "PROD-9"},
		{"prod code lowercase", "see prod-00012-b", "PROD-00012-B"},
		{"fallback token", "Apples 2026/AB/77 fresh", "2026/AB/77"},
		{"fallback ignores dates", "Apples 15/03/2026 K9-2231", "K9-2231"},
		{"fallback strips punctuation", "(XZ-9911)", "XZ-9911"},
		{"nothing", "Organic Apples", ""},
		{"short hyphen token ignored", "A-1 B-2", ""},
		{"label followed by keyword", "Organic Apples Batch EXP 15/03/2026", ""},
		{"keyword skipped for later label", "Batch EXP 15/03/2026 LOT K7-01", "K7-01"},
		{"glued expiry is not a code", "EXP15/03/2026", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Batch(Clean(tt.text)))
		})
	}
}

func TestExpiry(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"exp label", "EXP 15/03/2026", "15/03/2026"},
		{"exp dot label", "Exp. 2026-03-15", "2026-03-15"},
		{"expiry date label", "EXPIRY DATE: 01.02.27", "01.02.27"},
		{"best before", "Best Before 3 Mar 2026", "3 Mar 2026"},
		{"best before end", "BEST BEFORE END 03/2026/01 12/12/2026", "12/12/2026"},
		{"use by", "use by 2026/04/30", "2026/04/30"},
		{"bbe", "BBE: 7th September 2026", "7th September 2026"},
		{"unlabeled dmy", "Apples 15-03-2026", "15-03-2026"},
		{"unlabeled ymd", "packed 2026-01-02", "2026-01-02"},
		{"unlabeled textual", "made 12 June 2026", "12 June 2026"},
		{"label beats earlier date", "PACKED 01/01/2026 EXP 15/03/2026", "15/03/2026"},
		{"none", "LOT-2026-0113-001", ""},
		{"glued to exp", "EXP15/03/2026", "15/03/2026"},
		{"glued to bbe", "Organic Apples BBE15.03.26", "15.03.26"},
		{"glued to letters unlabeled", "PACKED2026-01-02", "2026-01-02"},
		{"digits do not run on", "ref 123/04/2026", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expiry(Clean(tt.text)))
		})
	}
}

func TestNameGuess(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Organic Apples Batch 123", "Organic Apples"},
		{"Fresh, Crisp! Apples (Gala) EXP 01/01/2026", "Fresh Crisp Apples Gala"},
		{"one two three four five six seven", "one two three four five six"},
		{"Lot 12", ""},
		{"-- Milk --", "Milk"},
		{"Crème Brûlée Best Before 1/1/26", "Crème Brûlée"},
		{"EXP:15/03/2026", ""},
		{"Organic Apples BBE15.03.26", "Organic Apples"},
		{"Lotion Bestseller EXP 1/1/26", "Lotion Bestseller"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, NameGuess(Clean(tt.text)))
		})
	}
}

func TestCodes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lot and catalog id", "PROD-00007 Organic Apples LOT A-100", []string{"A-100", "PROD-00007"}},
		{"every label value", "BATCH X-1001 LOT Y-2002", []string{"X-1001", "Y-2002"}},
		{"fallback tokens after ids", "prod-00003 Yogurt 2026/AB/77", []string{"PROD-00003", "2026/AB/77"}},
		{"dates are not codes", "EXP 15/03/2026 2026-03-15", nil},
		{"nothing", "Organic Apples", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Codes(tt.text))
		})
	}
}

func TestExtract_GluedExpiry(t *testing.T) {
	got := Extract("EXP15/03/2026")
	assert.Empty(t, got.BatchCode)
	assert.Equal(t, "15/03/2026", got.ExpiryDate)
	assert.Empty(t, got.NameGuess)

	got = Extract("Organic Apples BBE15.03.26")
	assert.Equal(t, "15.03.26", got.ExpiryDate)
	assert.Equal(t, "Organic Apples", got.NameGuess)
}

func TestFieldsPredicates(t *testing.T) {
	assert.True(t, Fields{}.IsEmpty())
	assert.False(t, Fields{}.HasAny())
	assert.False(t, Fields{NameGuess: "Apples"}.HasAny())
	assert.False(t, Fields{NameGuess: "Apples"}.IsEmpty())
	assert.True(t, Fields{ExpiryDate: "1/1/26"}.HasAny())
}

func TestClean(t *testing.T) {
	assert.Equal(t, "LOT-12 EXP 1/1/26", Clean("  LOT\u201312\u200B \n EXP\t1/1/26 "))
	assert.Equal(t, "ABC 12", Clean("\uFF21\uFF22\uFF23 \uFF11\uFF12"))
	assert.Equal(t, "BATCH A-1", Clean("\uFEFFBATCH\u00A0A\u20141\u200D"))
	assert.Empty(t, Clean(""))
	assert.Equal(t, "a b", Clean("a\u0007 b"))
}
