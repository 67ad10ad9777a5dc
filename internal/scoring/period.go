package scoring

import (
	"math"
	"time"

	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

var compatFactors = map[Compat]float64{
	CompatExact:          1.0,
	CompatMonthInQuarter: 0.6,
	CompatQuarterInYear:  0.55,
	CompatMonthInYear:    0.45,
	CompatNone:           0,
}

// Factor returns the period compatibility factor of c.
func Factor(c Compat) float64 { return compatFactors[c] }

// PeriodCompat classifies how two reporting periods relate. The relation is
// symmetric: a quarter containing a month is month_in_quarter either way.
func PeriodCompat(a, b fingerprint.Period) Compat {
	if rank(a.Type) > rank(b.Type) {
		a, b = b, a
	}
	if a.Year != b.Year {
		return CompatNone
	}
	switch {
	case a.Type == b.Type:
		if a.Month == b.Month && a.Quarter == b.Quarter {
			return CompatExact
		}
	case a.Type == fingerprint.PeriodMonth && b.Type == fingerprint.PeriodQuarter:
		if fingerprint.QuarterOf(a.Month) == b.Quarter {
			return CompatMonthInQuarter
		}
	case a.Type == fingerprint.PeriodQuarter && b.Type == fingerprint.PeriodYear:
		return CompatQuarterInYear
	case a.Type == fingerprint.PeriodMonth && b.Type == fingerprint.PeriodYear:
		return CompatMonthInYear
	}
	return CompatNone
}

// PeriodScore is the macro period term: 0.4 times the compatibility factor.
func PeriodScore(a, b fingerprint.Period) float64 {
	return 0.4 * Factor(PeriodCompat(a, b))
}

func rank(t fingerprint.PeriodType) int {
	switch t {
	case fingerprint.PeriodMonth:
		return 0
	case fingerprint.PeriodQuarter:
		return 1
	default:
		return 2
	}
}

func mentionPeriod(d fingerprint.DateMention) fingerprint.Period {
	switch d.Precision {
	case fingerprint.PrecisionDay, fingerprint.PrecisionMonth:
		return fingerprint.Period{Type: fingerprint.PeriodMonth, Year: d.Year, Month: d.Month}
	case fingerprint.PrecisionQuarter:
		return fingerprint.Period{Type: fingerprint.PeriodQuarter, Year: d.Year, Quarter: d.Quarter}
	default:
		return fingerprint.Period{Type: fingerprint.PeriodYear, Year: d.Year}
	}
}

// contains reports whether coarse mention c covers day mention d.
func contains(c, d fingerprint.DateMention) bool {
	if c.Year != d.Year {
		return false
	}
	switch c.Precision {
	case fingerprint.PrecisionMonth:
		return c.Month == d.Month
	case fingerprint.PrecisionQuarter:
		return c.Quarter == fingerprint.QuarterOf(d.Month)
	case fingerprint.PrecisionYear:
		return true
	}
	return false
}

func daysApart(a, b time.Time) int {
	return int(math.Abs(a.Sub(b).Hours()) / 24)
}

// mentionCompat scores one pair of explicit date mentions.
func mentionCompat(a, b fingerprint.DateMention, window int) float64 {
	aDay := a.Precision == fingerprint.PrecisionDay
	bDay := b.Precision == fingerprint.PrecisionDay
	switch {
	case aDay && bDay:
		switch d := daysApart(a.Time(), b.Time()); {
		case d == 0:
			return 1
		case d <= window:
			return 0.8
		default:
			return 0
		}
	case aDay || bDay:
		day, coarse := a, b
		if bDay {
			day, coarse = b, a
		}
		if !contains(coarse, day) {
			return 0
		}
		switch coarse.Precision {
		case fingerprint.PrecisionMonth:
			return 0.75
		case fingerprint.PrecisionQuarter:
			return 0.6
		default:
			return 0.5
		}
	default:
		return Factor(PeriodCompat(mentionPeriod(a), mentionPeriod(b)))
	}
}

// dateCompat is the best compatibility across explicit mentions. When a side
// has no title date, sharing a close-time year is weak evidence.
func dateCompat(l, r *fingerprint.Fingerprint, window int) float64 {
	le, re := l.ExplicitDates(), r.ExplicitDates()
	if len(le) == 0 && len(re) == 0 {
		return 0.5
	}
	if len(le) == 0 || len(re) == 0 {
		if sharesYear(l.Years(), r.Years()) {
			return 0.3
		}
		return 0
	}
	best := 0.0
	for _, a := range le {
		for _, b := range re {
			if v := mentionCompat(a, b, window); v > best {
				best = v
			}
		}
	}
	return best
}

func sharesYear(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// dateGatePasses checks a PRICE_DATE side's day dates against the other
// side. A day on the other side must be within the window; a coarser
// explicit mention must contain the day; with no title date at all, the
// other side's close date must be within the window.
func dateGatePasses(priced, other *fingerprint.Fingerprint, window int) bool {
	var days []fingerprint.DateMention
	for _, d := range priced.ExplicitDates() {
		if d.Precision == fingerprint.PrecisionDay {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return false
	}

	explicit := other.ExplicitDates()
	if len(explicit) == 0 {
		if other.CloseTime == nil {
			return false
		}
		closeDay := other.CloseTime.UTC().Truncate(24 * time.Hour)
		for _, d := range days {
			if daysApart(d.Time(), closeDay) <= window {
				return true
			}
		}
		return false
	}
	for _, d := range days {
		for _, o := range explicit {
			if o.Precision == fingerprint.PrecisionDay {
				if daysApart(d.Time(), o.Time()) <= window {
					return true
				}
				continue
			}
			if contains(o, d) {
				return true
			}
		}
	}
	return false
}
