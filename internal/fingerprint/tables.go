package fingerprint

import (
	"sort"
	"strings"
)

// EntityClass groups canonical tags by the kind of subject they name.
type EntityClass string

const (
	ClassCrypto    EntityClass = "crypto"
	ClassPerson    EntityClass = "person"
	ClassParty     EntityClass = "party"
	ClassMacro     EntityClass = "macro"
	ClassIndex     EntityClass = "index"
	ClassCommodity EntityClass = "commodity"
	ClassOrg       EntityClass = "org"
	ClassOther     EntityClass = "other"
)

// Entity is the canonical tag a surface form resolves to.
type Entity struct {
	Tag   string
	Class EntityClass
}

// maxPhraseTokens bounds the length of multi-word surface forms.
const maxPhraseTokens = 3

// Tables maps lower-case surface forms (one to three tokens) to canonical
// entities. Lookups are whole-token, so "eth" never matches inside "hegseth".
type Tables struct {
	forms map[string]Entity
	// classes holds the class of each tag; the last Add for a tag wins.
	classes map[string]EntityClass
}

// NewTables builds a table from surface form -> entity pairs, added in form
// order.
func NewTables(forms map[string]Entity) *Tables {
	t := &Tables{
		forms:   make(map[string]Entity, len(forms)),
		classes: make(map[string]EntityClass),
	}
	keys := make([]string, 0, len(forms))
	for form := range forms {
		keys = append(keys, form)
	}
	sort.Strings(keys)
	for _, form := range keys {
		t.Add(form, forms[form])
	}
	return t
}

// Add registers one surface form. The form is normalised the same way titles
// are, so "Donald Trump" and "donald  trump" are the same key.
func (t *Tables) Add(form string, e Entity) {
	key := strings.Join(tokenize(normalizeText(form)), " ")
	if key == "" || e.Tag == "" {
		return
	}
	if e.Class == "" {
		e.Class = ClassOther
	}
	e.Tag = strings.ToUpper(e.Tag)
	t.forms[key] = e
	t.classes[e.Tag] = e.Class
}

// Lookup resolves a normalised phrase.
func (t *Tables) Lookup(phrase string) (Entity, bool) {
	e, ok := t.forms[phrase]
	return e, ok
}

// Merge returns a new table with o's forms layered over t's.
func (t *Tables) Merge(o *Tables) *Tables {
	out := &Tables{
		forms:   make(map[string]Entity, len(t.forms)),
		classes: make(map[string]EntityClass, len(t.classes)),
	}
	for _, src := range []*Tables{t, o} {
		if src == nil {
			continue
		}
		for k, v := range src.forms {
			out.forms[k] = v
		}
		for tag, c := range src.classes {
			out.classes[tag] = c
		}
	}
	return out
}

// Len returns the number of surface forms.
func (t *Tables) Len() int { return len(t.forms) }

// Forms returns the registered surface forms in sorted order.
func (t *Tables) Forms() []string {
	out := make([]string, 0, len(t.forms))
	for k := range t.forms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ClassOf returns the class registered for tag.
func (t *Tables) ClassOf(tag string) (EntityClass, bool) {
	c, ok := t.classes[tag]
	return c, ok
}

var cryptoForms = map[string]Entity{
	"bitcoin":   {"BITCOIN", ClassCrypto},
	"btc":       {"BITCOIN", ClassCrypto},
	"xbt":       {"BITCOIN", ClassCrypto},
	"ethereum":  {"ETHEREUM", ClassCrypto},
	"eth":       {"ETHEREUM", ClassCrypto},
	"ether":     {"ETHEREUM", ClassCrypto},
	"solana":    {"SOLANA", ClassCrypto},
	"sol":       {"SOLANA", ClassCrypto},
	"xrp":       {"XRP", ClassCrypto},
	"ripple":    {"XRP", ClassCrypto},
	"dogecoin":  {"DOGECOIN", ClassCrypto},
	"doge":      {"DOGECOIN", ClassCrypto},
	"cardano":   {"CARDANO", ClassCrypto},
	"ada":       {"CARDANO", ClassCrypto},
	"litecoin":  {"LITECOIN", ClassCrypto},
	"ltc":       {"LITECOIN", ClassCrypto},
	"bnb":       {"BNB", ClassCrypto},
	"chainlink": {"CHAINLINK", ClassCrypto},
	"avalanche": {"AVALANCHE", ClassCrypto},
	"avax":      {"AVALANCHE", ClassCrypto},
}

var macroForms = map[string]Entity{
	"cpi":                    {"CPI", ClassMacro},
	"consumer price index":   {"CPI", ClassMacro},
	"inflation":              {"CPI", ClassMacro},
	"core cpi":               {"CORE_CPI", ClassMacro},
	"pce":                    {"PCE", ClassMacro},
	"core pce":               {"CORE_PCE", ClassMacro},
	"gdp":                    {"GDP", ClassMacro},
	"gdp growth":             {"GDP", ClassMacro},
	"unemployment":           {"UNEMPLOYMENT", ClassMacro},
	"unemployment rate":      {"UNEMPLOYMENT", ClassMacro},
	"jobless rate":           {"UNEMPLOYMENT", ClassMacro},
	"nonfarm payrolls":       {"NFP", ClassMacro},
	"non farm payrolls":      {"NFP", ClassMacro},
	"payrolls":               {"NFP", ClassMacro},
	"nfp":                    {"NFP", ClassMacro},
	"jobs report":            {"NFP", ClassMacro},
	"fed funds":              {"FED_RATE", ClassMacro},
	"fed funds rate":         {"FED_RATE", ClassMacro},
	"federal funds rate":     {"FED_RATE", ClassMacro},
	"fomc":                   {"FED_RATE", ClassMacro},
	"interest rate":          {"FED_RATE", ClassMacro},
	"rate cut":               {"FED_RATE", ClassMacro},
	"rate hike":              {"FED_RATE", ClassMacro},
	"recession":              {"RECESSION", ClassMacro},
	"ppi":                    {"PPI", ClassMacro},
	"producer price index":   {"PPI", ClassMacro},
	"jobless claims":         {"JOBLESS_CLAIMS", ClassMacro},
	"initial jobless claims": {"JOBLESS_CLAIMS", ClassMacro},
}

var politicsForms = map[string]Entity{
	"trump":         {"DONALD_TRUMP", ClassPerson},
	"donald trump":  {"DONALD_TRUMP", ClassPerson},
	"biden":         {"JOE_BIDEN", ClassPerson},
	"joe biden":     {"JOE_BIDEN", ClassPerson},
	"harris":        {"KAMALA_HARRIS", ClassPerson},
	"kamala":        {"KAMALA_HARRIS", ClassPerson},
	"kamala harris": {"KAMALA_HARRIS", ClassPerson},
	"vance":         {"JD_VANCE", ClassPerson},
	"jd vance":      {"JD_VANCE", ClassPerson},
	"newsom":        {"GAVIN_NEWSOM", ClassPerson},
	"gavin newsom":  {"GAVIN_NEWSOM", ClassPerson},
	"desantis":      {"RON_DESANTIS", ClassPerson},
	"ron desantis":  {"RON_DESANTIS", ClassPerson},
	"hegseth":       {"PETE_HEGSETH", ClassPerson},
	"pete hegseth":  {"PETE_HEGSETH", ClassPerson},
	"musk":          {"ELON_MUSK", ClassPerson},
	"elon musk":     {"ELON_MUSK", ClassPerson},
	"putin":         {"VLADIMIR_PUTIN", ClassPerson},
	"zelensky":      {"VOLODYMYR_ZELENSKY", ClassPerson},
	"zelenskyy":     {"VOLODYMYR_ZELENSKY", ClassPerson},
	"netanyahu":     {"BENJAMIN_NETANYAHU", ClassPerson},
	"powell":        {"JEROME_POWELL", ClassPerson},
	"jerome powell": {"JEROME_POWELL", ClassPerson},
	"mamdani":       {"ZOHRAN_MAMDANI", ClassPerson},
	"aoc":           {"ALEXANDRIA_OCASIO_CORTEZ", ClassPerson},
	"ocasio cortez": {"ALEXANDRIA_OCASIO_CORTEZ", ClassPerson},
	"republican":    {"REPUBLICAN_PARTY", ClassParty},
	"republicans":   {"REPUBLICAN_PARTY", ClassParty},
	"gop":           {"REPUBLICAN_PARTY", ClassParty},
	"democrat":      {"DEMOCRATIC_PARTY", ClassParty},
	"democrats":     {"DEMOCRATIC_PARTY", ClassParty},
	"democratic":    {"DEMOCRATIC_PARTY", ClassParty},
}

var generalForms = map[string]Entity{
	"s&p 500":   {"SP500", ClassIndex},
	"s p 500":   {"SP500", ClassIndex},
	"sp500":     {"SP500", ClassIndex},
	"spx":       {"SP500", ClassIndex},
	"nasdaq":    {"NASDAQ", ClassIndex},
	"dow":       {"DOW_JONES", ClassIndex},
	"dow jones": {"DOW_JONES", ClassIndex},
	"gold":      {"GOLD", ClassCommodity},
	"oil":       {"OIL", ClassCommodity},
	"crude oil": {"OIL", ClassCommodity},
	"wti":       {"OIL", ClassCommodity},
	"tesla":     {"TESLA", ClassOrg},
	"tsla":      {"TESLA", ClassOrg},
	"nvidia":    {"NVIDIA", ClassOrg},
	"nvda":      {"NVIDIA", ClassOrg},
	"apple":     {"APPLE", ClassOrg},
	"openai":    {"OPENAI", ClassOrg},
	"spacex":    {"SPACEX", ClassOrg},
}

// DefaultTables returns the built-in table for a table set name: "crypto",
// "macro", "politics", "general" or "all".
func DefaultTables(set string) *Tables {
	switch strings.ToLower(set) {
	case "crypto":
		return NewTables(cryptoForms)
	case "macro":
		return NewTables(macroForms)
	case "politics":
		return NewTables(politicsForms)
	case "general":
		return NewTables(generalForms)
	default:
		t := NewTables(cryptoForms)
		for _, m := range []map[string]Entity{macroForms, politicsForms, generalForms} {
			t = t.Merge(NewTables(m))
		}
		return t
	}
}
