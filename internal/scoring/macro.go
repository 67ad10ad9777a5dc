package scoring

import (
	"fmt"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

// Macro scores economic-indicator markets on entity and reporting period.
type Macro struct {
	cfg Config
}

func (m *Macro) Kind() candidate.Kind { return candidate.KindMacro }

func (m *Macro) Score(l, r *fingerprint.Fingerprint) Result {
	if len(l.MacroEntities) == 0 || len(r.MacroEntities) == 0 || !overlaps(l.MacroEntities, r.MacroEntities) {
		return gated(GateEntity, fmt.Sprintf("macro %v vs %v", l.MacroEntities, r.MacroEntities))
	}
	if l.Period == nil || r.Period == nil {
		return gated(GatePeriod, "missing period")
	}
	compat := PeriodCompat(*l.Period, *r.Period)
	if compat == CompatNone {
		return gated(GatePeriod, fmt.Sprintf("%s vs %s", l.Period.Key(), r.Period.Key()))
	}

	ps := 0.4 * Factor(compat)
	nc := numberCompat(l.Numbers, r.Numbers)
	text := (fuzzy(l.Normalized, r.Normalized) + jaccard(l.Tokens, r.Tokens)) / 2
	score := clamp01(0.5 + ps + 0.1*nc + 0.1*text)

	return Result{
		Score:  score,
		Gate:   GateNone,
		Compat: compat,
		Tier:   TierOf(compat),
		Reason: fmt.Sprintf("macro: entity=0.50 period=%.2f(%s %s~%s) number=%.2f text=%.2f",
			ps, compat, l.Period.Key(), r.Period.Key(), nc, text),
	}
}
