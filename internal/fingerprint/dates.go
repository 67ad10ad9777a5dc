package fingerprint

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const monthAlt = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var monthNumbers = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var ordinalQuarters = map[string]int{
	"first": 1, "1st": 1, "second": 2, "2nd": 2,
	"third": 3, "3rd": 3, "fourth": 4, "4th": 4,
}

// timeOfDayREs mark intraday titles; their spans are masked so clock
// readings are not mistaken for thresholds or days.
var timeOfDayREs = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}(?::\d{2})?\s?(?:am|pm)\b(?:\s(?:et|est|edt|utc|pt))?`),
	regexp.MustCompile(`\b\d{1,2}:\d{2}\b(?:\s(?:et|est|edt|utc|pt))?`),
	regexp.MustCompile(`\b\d{1,3}\s?(?:min|mins|minute|minutes)\b`),
}

var intradayPhraseRE = regexp.MustCompile(`\b(?:up or down|hourly|next hour|this hour|intraday)\b`)

type datePattern struct {
	re    *regexp.Regexp
	build func(m []string, closeYear int) (DateMention, bool)
	// skip rejects a match by its surroundings.
	skip func(text string, start, end int) bool
}

// numeralSuffixRE matches the unit or percent that can follow a numeral.
var numeralSuffixRE = regexp.MustCompile(`^\s?(?:%|(?:k|m|mm|mn|b|bn|t|thousand|million|billion|trillion|percent|bps)\b)`)

// inNumeral reports whether text[start:end] is part of a currency, unit or
// decimal numeral rather than a standalone year: "$2000", "2050k", "1.2025".
func inNumeral(text string, start, end int) bool {
	before := strings.TrimSuffix(text[:start], " ")
	if strings.HasSuffix(before, "$") {
		return true
	}
	if start >= 2 && (text[start-1] == '.' || text[start-1] == ',') && isDigit(text[start-2]) {
		return true
	}
	after := text[end:]
	if len(after) >= 2 && (after[0] == '.' || after[0] == ',') && isDigit(after[1]) {
		return true
	}
	return numeralSuffixRE.MatchString(after)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

var datePatterns = []datePattern{
	{ // 2025-12-31
		re: regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`),
		build: func(m []string, _ int) (DateMention, bool) {
			return dayMention(m[0], atoi(m[1]), atoi(m[2]), atoi(m[3]))
		},
	},
	{ // 12/31/2025, 12/31/25
		re: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})\b`),
		build: func(m []string, _ int) (DateMention, bool) {
			year := atoi(m[3])
			if year < 100 {
				year += 2000
			}
			return dayMention(m[0], year, atoi(m[1]), atoi(m[2]))
		},
	},
	{ // dec 31, 2025 / december 31st / end of dec 31
		re: regexp.MustCompile(`\b(` + monthAlt + `)\.? (\d{1,2})(?:st|nd|rd|th)?(?:,? (\d{4}))?\b`),
		build: func(m []string, closeYear int) (DateMention, bool) {
			year := closeYear
			if m[3] != "" {
				year = atoi(m[3])
			}
			return dayMention(m[0], year, monthNumber(m[1]), atoi(m[2]))
		},
	},
	{ // 31 dec 2025 / 31st of december 2025
		re: regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)? (?:of )?(` + monthAlt + `)\.?,? (\d{4})\b`),
		build: func(m []string, _ int) (DateMention, bool) {
			return dayMention(m[0], atoi(m[3]), monthNumber(m[2]), atoi(m[1]))
		},
	},
	{ // q1 2026 / q1-2026 / q1 of 2026
		re: regexp.MustCompile(`\bq([1-4])(?:\s|-)?(?:of )?(\d{4})\b`),
		build: func(m []string, _ int) (DateMention, bool) {
			return quarterMention(m[0], atoi(m[2]), atoi(m[1]))
		},
	},
	{ // 2026 q1
		re: regexp.MustCompile(`\b(\d{4})(?:\s|-)?q([1-4])\b`),
		build: func(m []string, _ int) (DateMention, bool) {
			return quarterMention(m[0], atoi(m[1]), atoi(m[2]))
		},
	},
	{ // first quarter of 2026
		re: regexp.MustCompile(`\b(first|second|third|fourth|1st|2nd|3rd|4th) quarter (?:of )?(\d{4})\b`),
		build: func(m []string, _ int) (DateMention, bool) {
			return quarterMention(m[0], atoi(m[2]), ordinalQuarters[m[1]])
		},
	},
	{ // december 2025 / end of dec 2025
		re: regexp.MustCompile(`\b(?:end of )?(` + monthAlt + `)\.?,? (\d{4})\b`),
		build: func(m []string, _ int) (DateMention, bool) {
			return monthMention(m[0], atoi(m[2]), monthNumber(m[1]))
		},
	},
	{ // in march / by end of june (year from close time)
		re: regexp.MustCompile(`\b(?:in|by|end of|during|for|through) (` + monthAlt + `)\b`),
		build: func(m []string, closeYear int) (DateMention, bool) {
			return monthMention(m[0], closeYear, monthNumber(m[1]))
		},
	},
	{ // q3 (year from close time)
		re: regexp.MustCompile(`\bq([1-4])\b`),
		build: func(m []string, closeYear int) (DateMention, bool) {
			return quarterMention(m[0], closeYear, atoi(m[1]))
		},
	},
	{ // 2025, end of 2025
		re: regexp.MustCompile(`\b((?:19|20)\d{2})\b`),
		build: func(m []string, _ int) (DateMention, bool) {
			year := atoi(m[1])
			return DateMention{Raw: m[0], Year: year, Precision: PrecisionYear}, validYear(year)
		},
		skip: inNumeral,
	},
}

type positionedMention struct {
	start   int
	mention DateMention
}

// extractDates finds date and period phrases in normalised text. It returns
// the mentions in title order, the text with matched spans blanked out, and
// whether a clock time or intraday phrase was seen.
func extractDates(text string, closeTime *time.Time) ([]DateMention, string, bool) {
	closeYear := 0
	if closeTime != nil {
		closeYear = closeTime.UTC().Year()
	}

	masked := []byte(text)
	intraday := intradayPhraseRE.MatchString(text)
	for _, re := range timeOfDayREs {
		for _, loc := range re.FindAllIndex(masked, -1) {
			intraday = true
			blank(masked, loc[0], loc[1])
		}
	}

	var found []positionedMention
	for _, p := range datePatterns {
		current := string(masked)
		for _, loc := range p.re.FindAllStringSubmatchIndex(current, -1) {
			if p.skip != nil && p.skip(current, loc[0], loc[1]) {
				continue
			}
			m := submatches(current, loc)
			dm, ok := p.build(m, closeYear)
			if !ok {
				continue
			}
			dm.Raw = strings.TrimSpace(dm.Raw)
			found = append(found, positionedMention{start: loc[0], mention: dm})
			blank(masked, loc[0], loc[1])
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })
	out := make([]DateMention, 0, len(found))
	for _, f := range found {
		out = append(out, f.mention)
	}
	return out, string(masked), intraday
}

func submatches(s string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = s[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

func blank(b []byte, from, to int) {
	for i := from; i < to; i++ {
		b[i] = ' '
	}
}

func dayMention(raw string, year, month, day int) (DateMention, bool) {
	if !validYear(year) || month < 1 || month > 12 || day < 1 || day > daysIn(year, month) {
		return DateMention{}, false
	}
	return DateMention{Raw: raw, Year: year, Month: month, Day: day, Precision: PrecisionDay}, true
}

func monthMention(raw string, year, month int) (DateMention, bool) {
	if !validYear(year) || month < 1 || month > 12 {
		return DateMention{}, false
	}
	return DateMention{Raw: raw, Year: year, Month: month, Precision: PrecisionMonth}, true
}

func quarterMention(raw string, year, quarter int) (DateMention, bool) {
	if !validYear(year) || quarter < 1 || quarter > 4 {
		return DateMention{}, false
	}
	return DateMention{Raw: raw, Year: year, Quarter: quarter, Precision: PrecisionQuarter}, true
}

func validYear(y int) bool { return y >= 1900 && y <= 2100 }

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func monthNumber(s string) int {
	if len(s) < 3 {
		return 0
	}
	return monthNumbers[s[:3]]
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// derivePeriod picks the finest explicit mention and converts it to a
// reporting period. Day mentions report their month. Fallback mentions never
// produce a period.
func derivePeriod(dates []DateMention) *Period {
	rank := map[Precision]int{PrecisionDay: 0, PrecisionMonth: 1, PrecisionQuarter: 2, PrecisionYear: 3}
	best := -1
	for i, d := range dates {
		if d.Fallback {
			continue
		}
		if best < 0 || rank[d.Precision] < rank[dates[best].Precision] {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	d := dates[best]
	switch d.Precision {
	case PrecisionDay, PrecisionMonth:
		return &Period{Type: PeriodMonth, Year: d.Year, Month: d.Month}
	case PrecisionQuarter:
		return &Period{Type: PeriodQuarter, Year: d.Year, Quarter: d.Quarter}
	default:
		return &Period{Type: PeriodYear, Year: d.Year}
	}
}
