package fingerprint

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var numberRE = regexp.MustCompile(`(\$\s?)?(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?\s?(k|m|mm|mn|b|bn|t|thousand|million|billion|trillion)?\b(\s?%|\s?percent\b|\s?bps\b)?`)

var multipliers = map[string]decimal.Decimal{
	"k":        decimal.New(1, 3),
	"thousand": decimal.New(1, 3),
	"m":        decimal.New(1, 6),
	"mm":       decimal.New(1, 6),
	"mn":       decimal.New(1, 6),
	"million":  decimal.New(1, 6),
	"b":        decimal.New(1, 9),
	"bn":       decimal.New(1, 9),
	"billion":  decimal.New(1, 9),
	"t":        decimal.New(1, 12),
	"trillion": decimal.New(1, 12),
}

// numberSpan is a numeral found in the text and its canonical rendering.
type numberSpan struct {
	start, end int
	canonical  string
	value      decimal.Decimal
}

// extractNumbers finds currency, percentage and plain numerals in masked text
// (dates and clock times already blanked). Numerals glued to letters, such as
// "h5n1" or "2nd", are ignored.
func extractNumbers(masked string) []numberSpan {
	var out []numberSpan
	for _, loc := range numberRE.FindAllStringSubmatchIndex(masked, -1) {
		if loc[0] > 0 && isWordByte(masked[loc[0]-1]) {
			continue
		}
		m := submatches(masked, loc)
		digits := strings.ReplaceAll(m[2], ",", "") + m[3]
		v, err := decimal.NewFromString(digits)
		if err != nil {
			continue
		}
		if mult, ok := multipliers[m[4]]; ok && m[4] != "" {
			v = v.Mul(mult)
		}
		out = append(out, numberSpan{
			start:     loc[0],
			end:       loc[1],
			canonical: v.String(),
			value:     v,
		})
	}
	return out
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '.'
}

// numberValues returns the distinct values, ascending.
func numberValues(spans []numberSpan) []float64 {
	seen := make(map[string]bool, len(spans))
	out := make([]float64, 0, len(spans))
	for _, s := range spans {
		if seen[s.canonical] {
			continue
		}
		seen[s.canonical] = true
		out = append(out, s.value.InexactFloat64())
	}
	sort.Float64s(out)
	return out
}

// canonicalizeNumbers rewrites each numeral span of text into its canonical
// form so "$100k" and "100,000" tokenize the same way.
func canonicalizeNumbers(text string, spans []numberSpan) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	prev := 0
	for _, s := range spans {
		b.WriteString(text[prev:s.start])
		b.WriteString(" ")
		b.WriteString(s.canonical)
		b.WriteString(" ")
		prev = s.end
	}
	b.WriteString(text[prev:])
	return b.String()
}
