package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	isoLayout     = "2006-01-02"
	displayLayout = "02/01/2006"

	minYear = 1900
	maxYear = 2099
)

// Date is a calendar day at UTC midnight. The zero value means "no date".
type Date struct {
	t time.Time
}

// NewDate returns the date for y-m-d. Out-of-range values are normalized the
// way time.Date does; use ParseDate when the input needs validation.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// IsZero reports whether d holds no date.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns the date as a UTC midnight time.Time.
func (d Date) Time() time.Time { return d.t }

// ISO formats the date as yyyy-mm-dd, or "" for the zero Date.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(isoLayout)
}

// Display formats the date as dd/mm/yyyy, or "" for the zero Date.
func (d Date) Display() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(displayLayout)
}

func (d Date) String() string { return d.ISO() }

// MarshalText encodes the date in ISO form.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.ISO()), nil
}

// UnmarshalText accepts anything ParseDate accepts. Empty input yields the zero Date.
func (d *Date) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*d = Date{}
		return nil
	}
	parsed, ok := ParseDate(string(text))
	if !ok {
		return &DateError{Input: string(text)}
	}
	*d = parsed
	return nil
}

// DateError reports text that does not parse as a date.
type DateError struct {
	Input string
}

func (e *DateError) Error() string {
	return "normalize: unrecognized date " + strconv.Quote(e.Input)
}

var (
	numericDMY = regexp.MustCompile(`^(\d{1,2})([/.\-])(\d{1,2})[/.\-](\d{4}|\d{2})$`)
	numericYMD = regexp.MustCompile(`^(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})$`)
	textualDMY = regexp.MustCompile(`(?i)^(\d{1,2})(?:st|nd|rd|th)?[\s\-/.]*([a-z]+)\.?[\s\-/.,]*(\d{4}|\d{2})$`)
)

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2 January 2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"20060102",
}

// ParseDate reads a label date. Day-first numeric forms win; a slash-separated
// month-first reading is tried only when the day-first reading is not a real
// date and the year has four digits. Two-digit years are taken as 20xx.
func ParseDate(s string) (Date, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return Date{}, false
	}

	if m := numericDMY.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[3])
		year := expandYear(m[4])
		if d, ok := validDate(year, b, a); ok {
			return d, true
		}
		if m[2] == "/" && len(m[4]) == 4 {
			if d, ok := validDate(year, a, b); ok {
				return d, true
			}
		}
		return Date{}, false
	}

	if m := numericYMD.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return validDate(year, month, day)
	}

	if m := textualDMY.FindStringSubmatch(s); m != nil {
		if month, ok := months[strings.ToLower(m[2])]; ok {
			day, _ := strconv.Atoi(m[1])
			return validDate(expandYear(m[3]), int(month), day)
		}
	}

	for _, layout := range fallbackLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return validDate(t.Year(), int(t.Month()), t.Day())
	}

	return Date{}, false
}

// ToISO converts a raw date string to yyyy-mm-dd.
func ToISO(s string) (string, bool) {
	d, ok := ParseDate(s)
	if !ok {
		return "", false
	}
	return d.ISO(), true
}

// ToDisplay converts an ISO yyyy-mm-dd string to dd/mm/yyyy.
func ToDisplay(iso string) (string, bool) {
	t, err := time.Parse(isoLayout, strings.TrimSpace(iso))
	if err != nil {
		return "", false
	}
	return t.Format(displayLayout), true
}

func expandYear(y string) int {
	n, _ := strconv.Atoi(y)
	if len(y) == 2 {
		return 2000 + n
	}
	return n
}

// validDate rejects dates time.Date would silently roll over, such as 31/02.
func validDate(year, month, day int) (Date, bool) {
	if year < minYear || year > maxYear || month < 1 || month > 12 || day < 1 || day > 31 {
		return Date{}, false
	}
	d := NewDate(year, time.Month(month), day)
	if d.t.Day() != day || int(d.t.Month()) != month {
		return Date{}, false
	}
	return d, true
}
