package fingerprint

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultBucketMinutes is the intraday time-bucket width.
const DefaultBucketMinutes = 15

// Options tunes extraction.
type Options struct {
	// BucketMinutes is the width of the intraday time-of-day slot.
	BucketMinutes int
}

// Extractor produces fingerprints using one entity table. It holds no
// mutable state and is safe for concurrent use.
type Extractor struct {
	tables *Tables
	opts   Options
}

// NewExtractor creates an Extractor. A nil table means no entities are
// recognised.
func NewExtractor(tables *Tables, opts Options) *Extractor {
	if tables == nil {
		tables = NewTables(nil)
	}
	if opts.BucketMinutes <= 0 {
		opts.BucketMinutes = DefaultBucketMinutes
	}
	return &Extractor{tables: tables, opts: opts}
}

var comparatorREs = []struct {
	re  *regexp.Regexp
	cmp Comparator
}{
	{regexp.MustCompile(`\b(?:above|over|greater than|more than|higher than|at least|or more|or higher|reach|reaches|hit|hits|exceed|exceeds|surpass|top|tops)\b`), ComparatorGTE},
	{regexp.MustCompile(`\b(?:below|under|less than|lower than|at most|or less|or lower|dip to|drop to|fall to|falls to)\b`), ComparatorLTE},
	{regexp.MustCompile(`\b(?:exactly|equal to|equals|be at)\b`), ComparatorEQ},
}

var electionWords = map[string]bool{
	"election": true, "elected": true, "elect": true, "reelected": true,
	"win": true, "wins": true, "winner": true, "nominee": true,
	"nomination": true, "primary": true, "presidential": true,
	"president": true, "presidency": true, "senate": true, "governor": true,
	"mayor": true, "caucus": true, "electoral": true, "vote": true,
	"midterms": true, "midterm": true, "house": true, "seats": true,
}

var intradayIntervals = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true, "1h": true,
	"60m": true, "hourly": true, "intraday": true,
}

// Extract builds the fingerprint of one market. Malformed input never fails:
// unparseable parts simply leave their fields empty.
func (e *Extractor) Extract(marketID, title string, closeTime *time.Time, metadata map[string]string) Fingerprint {
	fp := Fingerprint{MarketID: marketID, Title: title}
	if closeTime != nil {
		ct := closeTime.UTC()
		fp.CloseTime = &ct
	}

	normalized := normalizeText(title)
	dates, masked, intraday := extractDates(normalized, fp.CloseTime)
	spans := extractNumbers(e.maskEntityNumerals(masked))
	fp.Numbers = numberValues(spans)

	if len(dates) == 0 && fp.CloseTime != nil {
		dates = append(dates, DateMention{
			Raw:       "close:" + fp.CloseTime.Format("2006-01-02"),
			Year:      fp.CloseTime.Year(),
			Precision: PrecisionYear,
			Fallback:  true,
		})
	}
	fp.Dates = dates
	fp.Period = derivePeriod(dates)

	tokens := tokenize(canonicalizeNumbers(normalized, spans))
	entities, canonical := e.matchEntities(tokens)
	for _, tag := range e.metadataEntities(metadata) {
		entities[tag] = e.classOf(tag)
	}
	fp.Entities, fp.MacroEntities, fp.EntityClasses = splitEntities(entities)
	fp.Tokens = tokenSet(canonical)
	fp.Normalized = strings.Join(canonical, " ")
	fp.Comparator = detectComparator(normalized)

	fp.Intraday = intraday || intradayIntervals[strings.ToLower(strings.TrimSpace(metadata["interval"]))]
	fp.SettleDate = settleDate(dates, fp.CloseTime)
	if fp.CloseTime != nil {
		fp.TimeBucket = timeBucket(*fp.CloseTime, e.opts.BucketMinutes)
	}

	fp.Intent = classifyIntent(&fp, entities)
	return fp
}

// matchEntities scans token windows longest-first and returns the entities
// found plus the token stream with each matched phrase replaced by its tag.
func (e *Extractor) matchEntities(tokens []string) (map[string]EntityClass, []string) {
	found := make(map[string]EntityClass)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for n := maxPhraseTokens; n >= 1; n-- {
			if i+n > len(tokens) {
				continue
			}
			phrase := strings.Join(tokens[i:i+n], " ")
			ent, ok := e.tables.Lookup(phrase)
			if !ok {
				continue
			}
			found[ent.Tag] = ent.Class
			out = append(out, strings.ToLower(ent.Tag))
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return found, out
}

// maskEntityNumerals blanks surface forms that carry a numeral, such as
// "s p 500", so the numeral is not read as a threshold. Windows are scanned
// longest-first like matchEntities.
func (e *Extractor) maskEntityNumerals(text string) string {
	locs := tokenRE.FindAllStringIndex(text, -1)
	var b []byte
	for i := 0; i < len(locs); {
		matched := 0
		for n := maxPhraseTokens; n >= 1; n-- {
			if i+n > len(locs) {
				continue
			}
			words := make([]string, n)
			for j := range n {
				words[j] = text[locs[i+j][0]:locs[i+j][1]]
			}
			phrase := strings.Join(words, " ")
			if _, ok := e.tables.Lookup(phrase); !ok {
				continue
			}
			matched = n
			if strings.ContainsAny(phrase, "0123456789") {
				if b == nil {
					b = []byte(text)
				}
				blank(b, locs[i][0], locs[i+n-1][1])
			}
			break
		}
		if matched == 0 {
			matched = 1
		}
		i += matched
	}
	if b == nil {
		return text
	}
	return string(b)
}

// metadataEntities resolves venue-supplied entity hints. Known surface forms
// map through the table; anything else is taken as a literal tag.
func (e *Extractor) metadataEntities(metadata map[string]string) []string {
	var out []string
	for _, key := range []string{"entity", "ticker", "underlying"} {
		v := strings.TrimSpace(metadata[key])
		if v == "" {
			continue
		}
		phrase := strings.Join(tokenize(normalizeText(v)), " ")
		if ent, ok := e.tables.Lookup(phrase); ok {
			out = append(out, ent.Tag)
			continue
		}
		if key == "entity" {
			out = append(out, strings.ToUpper(strings.ReplaceAll(phrase, " ", "_")))
		}
	}
	return out
}

func (e *Extractor) classOf(tag string) EntityClass {
	if c, ok := e.tables.ClassOf(tag); ok {
		return c
	}
	return ClassOther
}

func splitEntities(found map[string]EntityClass) ([]string, []string, []EntityClass) {
	entities := make([]string, 0, len(found))
	for tag := range found {
		entities = append(entities, tag)
	}
	sort.Strings(entities)

	macro := make([]string, 0)
	classSet := make(map[EntityClass]bool)
	for _, tag := range entities {
		c := found[tag]
		classSet[c] = true
		if c == ClassMacro {
			macro = append(macro, tag)
		}
	}
	classes := make([]EntityClass, 0, len(classSet))
	for c := range classSet {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return entities, macro, classes
}

func detectComparator(normalized string) Comparator {
	for _, c := range comparatorREs {
		if c.re.MatchString(normalized) {
			return c.cmp
		}
	}
	return ComparatorNone
}

func settleDate(dates []DateMention, closeTime *time.Time) string {
	for _, d := range dates {
		if !d.Fallback && d.Precision == PrecisionDay {
			return d.DayKey()
		}
	}
	if closeTime != nil {
		return closeTime.Format("2006-01-02")
	}
	return ""
}

func timeBucket(t time.Time, minutes int) string {
	slot := (t.Hour()*60 + t.Minute()) / minutes * minutes
	return fmt.Sprintf("%sT%02d:%02d", t.Format("2006-01-02"), slot/60, slot%60)
}

// classifyIntent derives the intent from the other fingerprint fields only.
func classifyIntent(fp *Fingerprint, entities map[string]EntityClass) Intent {
	switch {
	case len(fp.MacroEntities) > 0 && fp.Period != nil:
		return IntentMacroPeriod
	case len(fp.Entities) > 0 && len(fp.Numbers) > 0 && fp.HasDayDate():
		return IntentPriceDate
	}

	political := false
	for _, c := range entities {
		if c == ClassPerson || c == ClassParty {
			political = true
			break
		}
	}
	if political {
		for _, tok := range fp.Tokens {
			if electionWords[tok] {
				return IntentElection
			}
		}
	}
	if len(fp.Entities) > 0 && len(fp.Numbers) > 0 && len(fp.ExplicitDates()) > 0 {
		return IntentMetricDate
	}
	return IntentGeneral
}
