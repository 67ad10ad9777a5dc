package fingerprint

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var symbolReplacer = strings.NewReplacer(
	"≥", " above ",
	"≤", " below ",
	">=", " above ",
	"<=", " below ",
	">", " above ",
	"<", " below ",
	"’", "'",
	"–", " - ",
	"—", " - ",
	"&", " ",
)

var (
	// keep characters the number and date patterns rely on.
	strayPunctRE = regexp.MustCompile(`[^a-z0-9$%.,:/\-' ]+`)
	spaceRE      = regexp.MustCompile(`\s+`)
	tokenRE      = regexp.MustCompile(`[a-z0-9]+(?:\.[0-9]+)?`)
)

// normalizeText lower-cases s, strips accents, spells out comparison symbols
// and collapses whitespace. The result is what every pattern runs against.
func normalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = symbolReplacer.Replace(folded)
	folded = strayPunctRE.ReplaceAllString(folded, " ")
	folded = spaceRE.ReplaceAllString(folded, " ")
	return strings.TrimSpace(folded)
}

// tokenize splits normalised text into word and number tokens, in order.
func tokenize(s string) []string {
	return tokenRE.FindAllString(s, -1)
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "in": true, "to": true, "for": true, "is": true,
	"on": true, "at": true, "by": true, "be": true, "it": true,
	"will": true, "vs": true, "with": true, "this": true, "that": true,
	"than": true, "what": true, "which": true, "who": true, "does": true,
	"do": true, "s": true, "usd": true, "us": true, "before": true,
	"after": true, "as": true, "its": true, "any": true,
}

// tokenSet drops stop words and returns the sorted distinct tokens.
func tokenSet(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

func sortInts(xs []int) {
	sort.Ints(xs)
}
