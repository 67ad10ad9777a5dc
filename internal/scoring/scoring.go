// Package scoring decides whether two fingerprints describe the same event.
//
// Each index kind has its own Scorer variant with its own gate and weight
// table. Gates run before any weighting; a failed gate always yields a zero
// score and names the gate, so diagnostics can tell "rejected" from "weak".
package scoring

import (
	"strconv"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

// Gate names the hard precondition a pair failed, or GateNone.
type Gate string

const (
	GateNone   Gate = "none"
	GateDate   Gate = "date"
	GateText   Gate = "text"
	GatePeriod Gate = "period"
	GateType   Gate = "type"
	GateEntity Gate = "entity"
)

// Gates lists every gate in reporting order.
var Gates = []Gate{GateDate, GateText, GatePeriod, GateType, GateEntity}

// Compat is how two macro periods relate.
type Compat string

const (
	CompatExact          Compat = "exact"
	CompatMonthInQuarter Compat = "month_in_quarter"
	CompatQuarterInYear  Compat = "quarter_in_year"
	CompatMonthInYear    Compat = "month_in_year"
	CompatNone           Compat = "none"
)

// Tier is the confidence class of a macro match.
type Tier string

const (
	TierStrong Tier = "STRONG"
	TierWeak   Tier = "WEAK"
)

// TierOf maps a period compatibility kind to its tier.
func TierOf(c Compat) Tier {
	switch c {
	case CompatExact, CompatMonthInQuarter, CompatQuarterInYear:
		return TierStrong
	default:
		return TierWeak
	}
}

// Result is the outcome of scoring one pair.
type Result struct {
	Score  float64
	Reason string
	Gate   Gate
	Compat Compat
	Tier   Tier
}

// Passed reports whether every gate passed.
func (r Result) Passed() bool { return r.Gate == GateNone }

// Meta renders the structured parts of a result for storage on a link.
func (r Result) Meta() map[string]string {
	m := map[string]string{
		"gate":  string(r.Gate),
		"score": strconv.FormatFloat(r.Score, 'f', 4, 64),
	}
	if r.Compat != "" {
		m["compat"] = string(r.Compat)
	}
	if r.Tier != "" {
		m["tier"] = string(r.Tier)
	}
	return m
}

// Scorer scores a (left, right) pair. Implementations are pure.
type Scorer interface {
	Score(left, right *fingerprint.Fingerprint) Result
	Kind() candidate.Kind
}

// Config carries every scoring threshold for one run.
type Config struct {
	// DateWindowDays is how far apart two day-precision dates may be and
	// still count as the same settlement.
	DateWindowDays int `toml:"date_window_days"`

	PriceDateMinSim     float64 `toml:"price_date_min_sim"`
	PriceDateMinJaccard float64 `toml:"price_date_min_jaccard"`
	MinSim              float64 `toml:"min_sim"`
	MinJaccard          float64 `toml:"min_jaccard"`

	// AdjacentDays is the crypto settle-date tolerance.
	AdjacentDays int `toml:"adjacent_days"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		DateWindowDays:      1,
		PriceDateMinSim:     0.20,
		PriceDateMinJaccard: 0.10,
		MinSim:              0.12,
		MinJaccard:          0.05,
		AdjacentDays:        1,
	}
}

// New returns the scorer variant for an index kind.
func New(kind candidate.Kind, cfg Config) Scorer {
	switch kind {
	case candidate.KindMacro:
		return &Macro{cfg: cfg}
	case candidate.KindCrypto:
		return &Crypto{cfg: cfg}
	case candidate.KindIntraday:
		return &Intraday{cfg: cfg}
	default:
		return &General{cfg: cfg}
	}
}

func gated(g Gate, reason string) Result {
	return Result{Score: 0, Gate: g, Reason: "gate=" + string(g) + ": " + reason}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
