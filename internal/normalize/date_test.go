package normalize

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/extract"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"15/03/2026", "2026-03-15"},
		{"15-03-2026", "2026-03-15"},
		{"15.03.2026", "2026-03-15"},
		{"5/3/26", "2026-03-05"},
		{"2026-03-15", "2026-03-15"},
		{"2026/3/5", "2026-03-05"},
		{"03/25/2026", "2026-03-25"},
		{"15 Mar 2026", "2026-03-15"},
		{"15 march 2026", "2026-03-15"},
		{"1st Sept 2026", "2026-09-01"},
		{"15-MAR-26", "2026-03-15"},
		{"March 15, 2026", "2026-03-15"},
		{"20260315", "2026-03-15"},
		{"2026-03-15T10:00:00Z", "2026-03-15"},
		{"  15/03/2026  ", "2026-03-15"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, ok := ParseDate(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, d.ISO())
		})
	}
}

func TestParseDate_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"hello",
		"31/02/2026",
		"32/01/2026",
		"13/13/2026",
		"03-25-2026",
		"15 Foo 2026",
		"2026-02-30",
		"01/01/1800",
	} {
		t.Run(in, func(t *testing.T) {
			_, ok := ParseDate(in)
			assert.False(t, ok)
		})
	}
}

func TestParseDate_DayFirstWins(t *testing.T) {
	d, ok := ParseDate("04/05/2026")
	require.True(t, ok)
	assert.Equal(t, time.May, d.Time().Month())
	assert.Equal(t, 4, d.Time().Day())
}

func TestDate_Formats(t *testing.T) {
	d := NewDate(2026, time.March, 5)
	assert.Equal(t, "2026-03-05", d.ISO())
	assert.Equal(t, "05/03/2026", d.Display())
	assert.Equal(t, "2026-03-05", d.String())

	var zero Date
	assert.True(t, zero.IsZero())
	assert.Empty(t, zero.ISO())
	assert.Empty(t, zero.Display())
}

func TestDate_TextRoundTrip(t *testing.T) {
	var d Date
	require.NoError(t, d.UnmarshalText([]byte("15 Mar 2026")))
	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", string(out))

	var bad Date
	err = bad.UnmarshalText([]byte("not a date"))
	var de *DateError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "not a date", de.Input)
}

func TestToISOAndDisplay(t *testing.T) {
	iso, ok := ToISO("15/03/2026")
	require.True(t, ok)
	assert.Equal(t, "2026-03-15", iso)

	disp, ok := ToDisplay(iso)
	require.True(t, ok)
	assert.Equal(t, "15/03/2026", disp)

	_, ok = ToDisplay("15/03/2026")
	assert.False(t, ok)
}

func TestFromExtracted(t *testing.T) {
	got := FromExtracted(extract.Fields{BatchCode: "lot-2O26", ExpiryDate: "15/03/2026", NameGuess: "Apples"})
	assert.Equal(t, Fields{BatchCode: "LOT-2026", ExpiryDateISO: "2026-03-15", ExpiryDateDisplay: "15/03/2026"}, got)

	assert.Equal(t, Fields{}, FromExtracted(extract.Fields{ExpiryDate: "someday"}))
}

func TestDate_RoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("display then parse is identity", prop.ForAll(
		func(offset int) bool {
			base := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
			tm := base.AddDate(0, 0, offset)
			d := NewDate(tm.Year(), tm.Month(), tm.Day())

			back, ok := ParseDate(d.Display())
			if !ok || back.ISO() != d.ISO() {
				return false
			}
			disp, ok := ToDisplay(d.ISO())
			return ok && disp == d.Display()
		},
		gen.IntRange(0, 36500),
	))

	properties.TestingRun(t)
}
