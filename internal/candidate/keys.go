package candidate

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

// IndexKeys returns the keys a right-side market is stored under.
func IndexKeys(kind Kind, fp *fingerprint.Fingerprint) []string {
	switch kind {
	case KindMacro:
		if fp.Period == nil {
			return nil
		}
		return joinKeys(fp.MacroEntities, []string{fp.Period.Key()})
	case KindCrypto:
		if fp.SettleDate == "" {
			return nil
		}
		return joinKeys(fp.Entities, []string{fp.SettleDate})
	case KindIntraday:
		if fp.TimeBucket == "" {
			return nil
		}
		return joinKeys(fp.Entities, []string{fp.TimeBucket})
	default:
		return generalKeys(fp)
	}
}

// ProbeKeys returns the keys looked up for a left-side market.
func ProbeKeys(kind Kind, fp *fingerprint.Fingerprint) []string {
	switch kind {
	case KindMacro:
		if fp.Period == nil {
			return nil
		}
		return joinKeys(fp.MacroEntities, ExpandPeriod(*fp.Period))
	case KindCrypto:
		if fp.SettleDate == "" {
			return nil
		}
		return joinKeys(fp.Entities, adjacentDays(fp.SettleDate))
	case KindIntraday:
		if fp.TimeBucket == "" {
			return nil
		}
		return joinKeys(fp.Entities, []string{fp.TimeBucket})
	default:
		return generalKeys(fp)
	}
}

// generalKeys keys by entity; entity-less markets fall back to year buckets.
func generalKeys(fp *fingerprint.Fingerprint) []string {
	if len(fp.Entities) > 0 {
		return append([]string(nil), fp.Entities...)
	}
	years := fp.Years()
	keys := make([]string, 0, len(years))
	for _, y := range years {
		keys = append(keys, "year:"+strconv.Itoa(y))
	}
	return keys
}

// ExpandPeriod lists every period key compatible with p: a month also
// probes its quarter and year, a quarter probes its year and three months,
// and a year probes its four quarters and twelve months.
func ExpandPeriod(p fingerprint.Period) []string {
	switch p.Type {
	case fingerprint.PeriodMonth:
		q := fingerprint.Period{Type: fingerprint.PeriodQuarter, Year: p.Year, Quarter: fingerprint.QuarterOf(p.Month)}
		y := fingerprint.Period{Type: fingerprint.PeriodYear, Year: p.Year}
		return []string{p.Key(), q.Key(), y.Key()}
	case fingerprint.PeriodQuarter:
		keys := []string{p.Key(), fingerprint.Period{Type: fingerprint.PeriodYear, Year: p.Year}.Key()}
		for m := (p.Quarter-1)*3 + 1; m <= p.Quarter*3; m++ {
			keys = append(keys, fingerprint.Period{Type: fingerprint.PeriodMonth, Year: p.Year, Month: m}.Key())
		}
		return keys
	default:
		keys := []string{p.Key()}
		for q := 1; q <= 4; q++ {
			keys = append(keys, fingerprint.Period{Type: fingerprint.PeriodQuarter, Year: p.Year, Quarter: q}.Key())
		}
		for m := 1; m <= 12; m++ {
			keys = append(keys, fingerprint.Period{Type: fingerprint.PeriodMonth, Year: p.Year, Month: m}.Key())
		}
		return keys
	}
}

func adjacentDays(day string) []string {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return []string{day}
	}
	return []string{
		day,
		t.AddDate(0, 0, -1).Format("2006-01-02"),
		t.AddDate(0, 0, 1).Format("2006-01-02"),
	}
}

func joinKeys(entities, suffixes []string) []string {
	keys := make([]string, 0, len(entities)*len(suffixes))
	for _, e := range entities {
		for _, s := range suffixes {
			keys = append(keys, fmt.Sprintf("%s:%s", e, s))
		}
	}
	return keys
}
