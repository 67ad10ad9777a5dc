package dedup

import (
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

// BracketKey groups strike-ladder markets: same entity, same settlement and
// same comparator direction.
func BracketKey(fp *fingerprint.Fingerprint) string {
	settle := fp.SettleDate
	if fp.Intraday && fp.TimeBucket != "" {
		settle = fp.TimeBucket
	}
	return fp.PrimaryEntity() + "|" + settle + "|" + string(fp.Comparator)
}

type bracketGroup struct {
	key   string
	lines []Candidate
}

// bracket keeps the best MaxLinesPerGroup lines of each bracket and at most
// MaxGroupsPerLeft brackets, ranked by their best line.
func (p *Policy) bracket(sorted []Candidate, drops Drops) []Candidate {
	perGroup := p.cfg.MaxLinesPerGroup
	if perGroup <= 0 {
		perGroup = 1
	}

	var groups []*bracketGroup
	byKey := make(map[string]*bracketGroup)
	for _, c := range sorted {
		key := BracketKey(c.Right)
		g, ok := byKey[key]
		if !ok {
			g = &bracketGroup{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		if len(g.lines) >= perGroup {
			drops[DropBracket]++
			continue
		}
		g.lines = append(g.lines, c)
	}

	out := make([]Candidate, 0, len(sorted))
	for i, g := range groups {
		if p.cfg.MaxGroupsPerLeft > 0 && i >= p.cfg.MaxGroupsPerLeft {
			drops[DropBracket] += len(g.lines)
			continue
		}
		out = append(out, g.lines...)
	}
	SortCandidates(out)
	return out
}
