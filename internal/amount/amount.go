// Package amount finds and parses monetary amounts in invoice text.
//
// Amounts always carry two decimals and may group thousands with spaces,
// periods, commas or apostrophes. A leading minus (or a Scandinavian
// trailing minus) marks the amount negative. Sums are computed with
// shopspring/decimal so that many two-decimal values add up exactly.
package amount

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(
	`\d{1,3}(?:[.,'\x{00a0}]\d{3})+[.,]\d{2}` +
		`|\d{1,3}(?: \d{3})+[.,]\d{2}` +
		`|\d+[.,]\d{2}`)

var numberPattern = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)

// Match is one amount found in a string.
type Match struct {
	Value    decimal.Decimal
	Text     string
	Start    int // byte offset, including a leading sign
	End      int
	Negative bool
}

// Float returns the match value as float64.
func (m Match) Float() float64 {
	f, _ := m.Value.Float64()
	return f
}

// SpaceGrouped reports whether the match relied on a space as thousands
// separator, which makes "2 150,00" ambiguous with quantity 2, price 150,00.
func (m Match) SpaceGrouped() bool {
	return strings.ContainsAny(m.Text, " \u00a0")
}

// Split breaks a space-grouped match at its first space into a leading
// integer and the remaining amount.
func (m Match) Split() (lead float64, rest Match, ok bool) {
	text := strings.TrimLeft(m.Text, "-−– ")
	i := strings.IndexAny(text, " \u00a0")
	if i <= 0 {
		return 0, Match{}, false
	}
	head, tail := text[:i], strings.TrimLeft(text[i:], " \u00a0")
	lead, ok = ParseFloat(head)
	if !ok {
		return 0, Match{}, false
	}
	value, ok := Parse(tail)
	if !ok {
		return 0, Match{}, false
	}
	offset := m.End - len(tail)
	return lead, Match{Value: value, Text: tail, Start: offset, End: m.End}, true
}

// Find returns all amounts in text, left to right. Percentages and digit
// runs embedded in longer tokens such as dates are skipped.
func Find(text string) []Match {
	var out []Match
	for _, loc := range amountPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isWordRune(lastRune(text[:start])) {
			continue
		}
		if end < len(text) {
			next := text[end]
			if next >= '0' && next <= '9' {
				continue
			}
			if (next == '.' || next == ',') && end+1 < len(text) && text[end+1] >= '0' && text[end+1] <= '9' {
				continue
			}
		}
		if strings.HasPrefix(strings.TrimLeft(text[end:], " "), "%") {
			continue
		}

		value, ok := Parse(text[start:end])
		if !ok {
			continue
		}

		m := Match{Start: start, End: end}
		signAt, sign := leadingSign(text, start)
		if sign == signGlued {
			continue
		}
		if sign == signMinus {
			m.Negative = true
			m.Start = signAt
		} else if end < len(text) && text[end] == '-' && (end+1 == len(text) || text[end+1] == ' ') {
			m.Negative = true
			m.End = end + 1
		}
		if m.Negative {
			value = value.Neg()
		}
		m.Value = value
		m.Text = text[m.Start:m.End]
		out = append(out, m)
	}
	return out
}

type signKind int

const (
	signNone signKind = iota
	signMinus
	signGlued // hyphen joining a word to the digits, as in "INV-100,00"
)

// leadingSign finds a minus directly before start, allowing one space.
func leadingSign(text string, start int) (int, signKind) {
	i := start
	if i > 0 && text[i-1] == ' ' {
		i--
	}
	before := text[:i]
	for _, sign := range []string{"-", "−", "–"} {
		if !strings.HasSuffix(before, sign) {
			continue
		}
		at := len(before) - len(sign)
		if at > 0 && isWordRune(lastRune(text[:at])) {
			if i == start {
				return 0, signGlued
			}
			return 0, signNone
		}
		return at, signMinus
	}
	return 0, signNone
}

// Parse converts a single amount or number string to a decimal. The last
// period or comma is the decimal separator unless exactly three digits
// follow it, in which case it groups thousands.
func Parse(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	negative := false
	for _, sign := range []string{"-", "−", "–"} {
		if strings.HasPrefix(s, sign) {
			negative = true
			s = strings.TrimSpace(strings.TrimPrefix(s, sign))
			break
		}
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	if s == "" {
		return decimal.Zero, false
	}

	decimalAt := strings.LastIndexAny(s, ".,")
	if decimalAt >= 0 && len(s)-decimalAt-1 == 3 && s[:decimalAt] != "0" {
		decimalAt = -1
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case i == decimalAt:
			b.WriteByte('.')
		case r == ' ' || r == '\u00a0' || r == '.' || r == ',' || r == '\'':
		default:
			return decimal.Zero, false
		}
	}
	if b.Len() == 0 {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// ParseFloat is Parse for callers that work in float64.
func ParseFloat(s string) (float64, bool) {
	d, ok := Parse(s)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// IsNumber reports whether a token is a plain integer or decimal number.
func IsNumber(s string) bool {
	return numberPattern.MatchString(strings.TrimSpace(s))
}

// Sum adds values exactly and rounds the result to cents.
func Sum(values []float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// Within reports whether |a-b| <= tolerance, compared in decimal.
func Within(a, b, tolerance float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(tolerance))
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == ',' || r == '/' || r == '_'
}

func lastRune(s string) rune {
	if s == "" {
		return 0
	}
	r := []rune(s)
	return r[len(r)-1]
}
