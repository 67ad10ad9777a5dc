package scoring

import (
	"fmt"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

// General weights.
const (
	wEntity  = 0.35
	wDate    = 0.25
	wNumber  = 0.25
	wFuzzy   = 0.10
	wJaccard = 0.05
)

// General scores politics, events and anything without a dedicated variant.
type General struct {
	cfg Config
}

func (g *General) Kind() candidate.Kind { return candidate.KindGeneral }

func (g *General) Score(l, r *fingerprint.Fingerprint) Result {
	if l.Intraday != r.Intraday && overlaps(l.Entities, r.Entities) {
		return gated(GateType, "intraday vs daily")
	}

	priced := l.Intent == fingerprint.IntentPriceDate || r.Intent == fingerprint.IntentPriceDate
	if priced {
		ok := true
		if l.Intent == fingerprint.IntentPriceDate {
			ok = dateGatePasses(l, r, g.cfg.DateWindowDays)
		}
		if ok && r.Intent == fingerprint.IntentPriceDate {
			ok = dateGatePasses(r, l, g.cfg.DateWindowDays)
		}
		if !ok {
			return gated(GateDate, fmt.Sprintf("settle %s vs %s", l.SettleDate, r.SettleDate))
		}
	}

	jac := jaccard(l.Tokens, r.Tokens)
	fz := fuzzy(l.Normalized, r.Normalized)
	sim := (jac + fz) / 2
	minSim, minJac := g.cfg.MinSim, g.cfg.MinJaccard
	if priced {
		minSim, minJac = g.cfg.PriceDateMinSim, g.cfg.PriceDateMinJaccard
	}
	if sim < minSim || jac < minJac {
		return gated(GateText, fmt.Sprintf("sim=%.2f jaccard=%.2f", sim, jac))
	}

	ent := jaccard(l.Entities, r.Entities)
	dc := dateCompat(l, r, g.cfg.DateWindowDays)
	nc := numberCompat(l.Numbers, r.Numbers)
	score := clamp01(wEntity*ent + wDate*dc + wNumber*nc + wFuzzy*fz + wJaccard*jac)

	return Result{
		Score: score,
		Gate:  GateNone,
		Reason: fmt.Sprintf("general: entity=%.2f date=%.2f number=%.2f fuzzy=%.2f jaccard=%.2f intent=%s/%s",
			ent, dc, nc, fz, jac, l.Intent, r.Intent),
	}
}
