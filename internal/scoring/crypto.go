package scoring

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

// Crypto scores daily/periodic price markets keyed by settle date.
type Crypto struct {
	cfg Config
}

func (c *Crypto) Kind() candidate.Kind { return candidate.KindCrypto }

func (c *Crypto) Score(l, r *fingerprint.Fingerprint) Result {
	if len(l.Entities) == 0 || !sameSet(l.Entities, r.Entities) {
		return gated(GateEntity, fmt.Sprintf("%v vs %v", l.Entities, r.Entities))
	}
	if l.Intraday != r.Intraday {
		return gated(GateType, "intraday vs daily")
	}
	apart, ok := settleApart(l.SettleDate, r.SettleDate)
	if !ok || apart > c.cfg.AdjacentDays {
		return gated(GateDate, fmt.Sprintf("settle %s vs %s", l.SettleDate, r.SettleDate))
	}

	dateTerm := 1.0
	if apart > 0 {
		dateTerm = 0.7
	}
	nc := numberCompat(l.Numbers, r.Numbers)
	text := (fuzzy(l.Normalized, r.Normalized) + jaccard(l.Tokens, r.Tokens)) / 2
	score := 0.4 + 0.3*dateTerm + 0.2*nc + 0.1*text
	opposed := l.Comparator.Opposes(r.Comparator)
	if opposed {
		score *= 0.5
	}

	return Result{
		Score: clamp01(score),
		Gate:  GateNone,
		Reason: fmt.Sprintf("crypto: entity=1.00 date=%.2f(%s~%s) number=%.2f text=%.2f cmp=%q/%q opposed=%t",
			dateTerm, l.SettleDate, r.SettleDate, nc, text, l.Comparator, r.Comparator, opposed),
	}
}

// Intraday scores short-interval markets that settle on sharp boundaries.
type Intraday struct {
	cfg Config
}

func (i *Intraday) Kind() candidate.Kind { return candidate.KindIntraday }

func (i *Intraday) Score(l, r *fingerprint.Fingerprint) Result {
	if len(l.Entities) == 0 || !sameSet(l.Entities, r.Entities) {
		return gated(GateEntity, fmt.Sprintf("%v vs %v", l.Entities, r.Entities))
	}
	if !l.Intraday || !r.Intraday {
		return gated(GateType, "intraday vs daily")
	}
	if l.TimeBucket == "" || l.TimeBucket != r.TimeBucket {
		return gated(GateDate, fmt.Sprintf("bucket %s vs %s", l.TimeBucket, r.TimeBucket))
	}

	text := (fuzzy(l.Normalized, r.Normalized) + jaccard(l.Tokens, r.Tokens)) / 2
	return Result{
		Score:  clamp01(0.6 + 0.3 + 0.1*text),
		Gate:   GateNone,
		Reason: fmt.Sprintf("intraday: entity=1.00 bucket=1.00(%s) text=%.2f", l.TimeBucket, text),
	}
}

func settleApart(a, b string) (int, bool) {
	ta, err := time.Parse("2006-01-02", a)
	if err != nil {
		return 0, false
	}
	tb, err := time.Parse("2006-01-02", b)
	if err != nil {
		return 0, false
	}
	return daysApart(ta, tb), true
}
