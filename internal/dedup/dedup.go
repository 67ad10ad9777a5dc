// Package dedup trims a left market's scored candidates down to the set
// worth persisting: winner-gap or bracket pruning, the left cap with the
// macro cross-granularity quota, and finally the shared right cap.
package dedup

import (
	"sort"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
	"github.com/alanyoungcy/marketlink/internal/scoring"
)

// DropReason explains why a passing candidate was not saved.
type DropReason string

const (
	DropLeftCap          DropReason = "leftCap"
	DropCrossGranularity DropReason = "crossGranularity"
	DropRightCap         DropReason = "rightCap"
	DropWinnerGap        DropReason = "winnerGap"
	DropBracket          DropReason = "bracket"
)

// Reasons lists every drop reason in reporting order.
var Reasons = []DropReason{DropLeftCap, DropCrossGranularity, DropRightCap, DropWinnerGap, DropBracket}

// Drops counts dropped candidates by reason.
type Drops map[DropReason]int

// Add merges o into d.
func (d Drops) Add(o Drops) {
	for k, v := range o {
		d[k] += v
	}
}

// Candidate is one right market that passed every gate for a left market.
type Candidate struct {
	RightID string
	Right   *fingerprint.Fingerprint
	Result  scoring.Result
}

// Config holds the caps for one run.
type Config struct {
	TopK                       int     `toml:"top_k"`
	MaxSuggestionsPerLeft      int     `toml:"max_suggestions_per_left"`
	MaxCrossGranularityPerLeft int     `toml:"max_cross_granularity_per_left"`
	MaxPerRightKey             int     `toml:"max_per_right_key"`
	WinnerGap                  float64 `toml:"winner_gap"`
	Bracket                    bool    `toml:"bracket"`
	MaxGroupsPerLeft           int     `toml:"max_groups_per_left"`
	MaxLinesPerGroup           int     `toml:"max_lines_per_group"`
}

// DefaultConfig returns the stock caps.
func DefaultConfig() Config {
	return Config{
		TopK:                       5,
		MaxSuggestionsPerLeft:      5,
		MaxCrossGranularityPerLeft: 2,
		MaxPerRightKey:             8,
		WinnerGap:                  0.05,
		MaxGroupsPerLeft:           3,
		MaxLinesPerGroup:           1,
	}
}

// LeftCap is min(TopK, MaxSuggestionsPerLeft), ignoring unset values. Zero
// means unlimited.
func (c Config) LeftCap() int {
	switch {
	case c.TopK <= 0:
		return max(c.MaxSuggestionsPerLeft, 0)
	case c.MaxSuggestionsPerLeft <= 0:
		return c.TopK
	default:
		return min(c.TopK, c.MaxSuggestionsPerLeft)
	}
}

// SortCandidates orders by score descending, then right id ascending.
func SortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Result.Score != cands[j].Result.Score {
			return cands[i].Result.Score > cands[j].Result.Score
		}
		return cands[i].RightID < cands[j].RightID
	})
}

// Policy applies the per-left rules for one index kind.
type Policy struct {
	kind candidate.Kind
	cfg  Config
}

// NewPolicy creates a Policy.
func NewPolicy(kind candidate.Kind, cfg Config) *Policy {
	return &Policy{kind: kind, cfg: cfg}
}

// SelectLeft sorts cands and applies winner-gap or bracket pruning (crypto)
// and then the left cap with the macro cross-granularity quota. The right
// cap is applied separately because it is shared across left markets.
func (p *Policy) SelectLeft(cands []Candidate) ([]Candidate, Drops) {
	drops := Drops{}
	kept := append([]Candidate(nil), cands...)
	SortCandidates(kept)

	if p.kind == candidate.KindCrypto {
		if p.cfg.Bracket {
			kept = p.bracket(kept, drops)
		} else {
			kept = p.winnerGap(kept, drops)
		}
	}

	if p.kind == candidate.KindMacro {
		kept = p.crossGranularity(kept, drops)
	} else if limit := p.cfg.LeftCap(); limit > 0 && len(kept) > limit {
		drops[DropLeftCap] += len(kept) - limit
		kept = kept[:limit]
	}
	return kept, drops
}

func (p *Policy) winnerGap(sorted []Candidate, drops Drops) []Candidate {
	if p.cfg.WinnerGap <= 0 || len(sorted) < 2 {
		return sorted
	}
	if sorted[0].Result.Score-sorted[1].Result.Score < p.cfg.WinnerGap {
		return sorted
	}
	drops[DropWinnerGap] += len(sorted) - 1
	return sorted[:1]
}

// crossGranularity keeps exact-period matches up to the left cap and admits
// at most MaxCrossGranularityPerLeft others on top.
func (p *Policy) crossGranularity(sorted []Candidate, drops Drops) []Candidate {
	limit := p.cfg.LeftCap()
	out := make([]Candidate, 0, len(sorted))
	exact, cross := 0, 0
	for _, c := range sorted {
		if c.Result.Compat == scoring.CompatExact {
			if limit > 0 && exact >= limit {
				drops[DropLeftCap]++
				continue
			}
			exact++
		} else {
			if cross >= p.cfg.MaxCrossGranularityPerLeft {
				drops[DropCrossGranularity]++
				continue
			}
			cross++
		}
		out = append(out, c)
	}
	return out
}
