// Package fingerprint turns a market listing (title, close time, venue
// metadata) into a structured Fingerprint: canonical entities, numeric
// thresholds, date and period mentions, comparator direction and intent.
//
// Extraction is pure: the same input always produces the same Fingerprint.
// Every set-valued field is a sorted slice so fingerprints compare equal with
// reflect.DeepEqual and encode identically.
package fingerprint

import (
	"fmt"
	"time"
)

// Intent is the structural category of a market title. It decides which
// gates and which score formula apply to a pair.
type Intent string

const (
	IntentPriceDate   Intent = "PRICE_DATE"
	IntentElection    Intent = "ELECTION"
	IntentMetricDate  Intent = "METRIC_DATE"
	IntentMacroPeriod Intent = "MACRO_PERIOD"
	IntentGeneral     Intent = "GENERAL"
)

// Comparator is the inequality direction implied by a title.
type Comparator string

const (
	ComparatorNone Comparator = ""
	ComparatorGTE  Comparator = ">="
	ComparatorLTE  Comparator = "<="
	ComparatorEQ   Comparator = "="
)

// Opposes reports whether c and o point in opposite directions.
func (c Comparator) Opposes(o Comparator) bool {
	return (c == ComparatorGTE && o == ComparatorLTE) || (c == ComparatorLTE && o == ComparatorGTE)
}

// Precision is the granularity of a date mention.
type Precision string

const (
	PrecisionDay     Precision = "day"
	PrecisionMonth   Precision = "month"
	PrecisionQuarter Precision = "quarter"
	PrecisionYear    Precision = "year"
)

// DateMention is one date or period phrase found in a title. Month and Day
// are zero when the precision is coarser. Fallback mentions come from the
// market close time rather than the title.
type DateMention struct {
	Raw       string    `json:"raw"`
	Year      int       `json:"year"`
	Month     int       `json:"month,omitempty"`
	Quarter   int       `json:"quarter,omitempty"`
	Day       int       `json:"day,omitempty"`
	Precision Precision `json:"precision"`
	Fallback  bool      `json:"fallback,omitempty"`
}

// Time returns the first instant covered by the mention, in UTC.
func (d DateMention) Time() time.Time {
	month := d.Month
	if month == 0 {
		month = 1
		if d.Precision == PrecisionQuarter && d.Quarter > 0 {
			month = (d.Quarter-1)*3 + 1
		}
	}
	day := d.Day
	if day == 0 {
		day = 1
	}
	return time.Date(d.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DayKey returns the YYYY-MM-DD form of a day-precision mention.
func (d DateMention) DayKey() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// PeriodType is the granularity of a macro reporting period.
type PeriodType string

const (
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
)

// Period is the month, quarter or year a macro market refers to.
type Period struct {
	Type    PeriodType `json:"type"`
	Year    int        `json:"year"`
	Month   int        `json:"month,omitempty"`
	Quarter int        `json:"quarter,omitempty"`
}

// Key renders the period as YYYY-MM, YYYY-Qn or YYYY.
func (p Period) Key() string {
	switch p.Type {
	case PeriodMonth:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	case PeriodQuarter:
		return fmt.Sprintf("%04d-Q%d", p.Year, p.Quarter)
	default:
		return fmt.Sprintf("%04d", p.Year)
	}
}

// QuarterOf returns the quarter (1-4) containing month.
func QuarterOf(month int) int {
	return (month-1)/3 + 1
}

// Fingerprint is the structured, derived view of one market used for
// indexing and scoring. It is recomputed every run and never persisted.
type Fingerprint struct {
	MarketID string `json:"market_id"`
	Title    string `json:"title"`

	Entities      []string      `json:"entities"`
	MacroEntities []string      `json:"macro_entities"`
	EntityClasses []EntityClass `json:"entity_classes"`
	Numbers       []float64     `json:"numbers"`
	Dates         []DateMention `json:"dates"`
	Period        *Period       `json:"period,omitempty"`
	Intent        Intent        `json:"intent"`
	Comparator    Comparator    `json:"comparator"`

	// Tokens is the normalised title token set with entity surface forms
	// replaced by their canonical tag.
	Tokens     []string `json:"tokens"`
	Normalized string   `json:"normalized"`

	// SettleDate is the first day-precision title date, else the close date.
	SettleDate string `json:"settle_date,omitempty"`
	// TimeBucket is the close-time slot start, YYYY-MM-DDTHH:MM.
	TimeBucket string     `json:"time_bucket,omitempty"`
	Intraday   bool       `json:"intraday"`
	CloseTime  *time.Time `json:"close_time,omitempty"`
}

// HasEntity reports whether tag is among the fingerprint's entities.
func (f *Fingerprint) HasEntity(tag string) bool {
	for _, e := range f.Entities {
		if e == tag {
			return true
		}
	}
	return false
}

// PrimaryEntity returns the first entity in sorted order, or "".
func (f *Fingerprint) PrimaryEntity() string {
	if len(f.MacroEntities) > 0 {
		return f.MacroEntities[0]
	}
	if len(f.Entities) > 0 {
		return f.Entities[0]
	}
	return ""
}

// ExplicitDates returns the mentions taken from the title itself.
func (f *Fingerprint) ExplicitDates() []DateMention {
	out := make([]DateMention, 0, len(f.Dates))
	for _, d := range f.Dates {
		if !d.Fallback {
			out = append(out, d)
		}
	}
	return out
}

// HasDayDate reports whether the title carries a day-precision date.
func (f *Fingerprint) HasDayDate() bool {
	for _, d := range f.Dates {
		if !d.Fallback && d.Precision == PrecisionDay {
			return true
		}
	}
	return false
}

// Years returns the distinct years mentioned (explicit or fallback), sorted.
func (f *Fingerprint) Years() []int {
	seen := make(map[int]bool)
	var out []int
	for _, d := range f.Dates {
		if d.Year > 0 && !seen[d.Year] {
			seen[d.Year] = true
			out = append(out, d.Year)
		}
	}
	sortInts(out)
	return out
}
