// Package normalize canonicalizes the raw fields pulled off a label: batch
// codes are cleaned of OCR digit confusions and dates are parsed into a single
// calendar representation.
package normalize

import "strings"

// confusions maps letters OCR commonly reads in place of digits.
var confusions = map[byte]byte{
	'O': '0',
	'I': '1',
	'S': '5',
	'B': '8',
	'Z': '2',
}

// BatchCode uppercases s, drops every character outside [A-Z0-9/-] and
// replaces O, I, S, B and Z with 0, 1, 5, 8 and 2 when the letter sits next to
// a digit. Substitution repeats until nothing changes, so the result is a fixed
// point: BatchCode(BatchCode(s)) == BatchCode(s).
func BatchCode(s string) string {
	upper := strings.ToUpper(s)

	buf := make([]byte, 0, len(upper))
	for i := 0; i < len(upper); i++ {
		c := upper[i]
		if isDigit(c) || (c >= 'A' && c <= 'Z') || c == '/' || c == '-' {
			buf = append(buf, c)
		}
	}

	for {
		changed := false
		for i, c := range buf {
			digit, ok := confusions[c]
			if !ok {
				continue
			}
			if (i > 0 && isDigit(buf[i-1])) || (i+1 < len(buf) && isDigit(buf[i+1])) {
				buf[i] = digit
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	return string(buf)
}

// CleanCode uppercases s and strips characters outside [A-Z0-9/-] without any
// digit substitution. Used for comparing codes as printed.
func CleanCode(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(upper))
	for i := 0; i < len(upper); i++ {
		c := upper[i]
		if isDigit(c) || (c >= 'A' && c <= 'Z') || c == '/' || c == '-' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
