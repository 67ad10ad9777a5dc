package matcher

import (
	"sort"
	"time"

	"github.com/alanyoungcy/marketlink/internal/dedup"
	"github.com/alanyoungcy/marketlink/internal/scoring"
)

// Counters are the diagnostics every run reports, persisted or not.
type Counters struct {
	LeftMarkets          int            `json:"left_markets"`
	RightMarkets         int            `json:"right_markets"`
	SkippedConfirmed     int            `json:"skipped_confirmed"`
	LeftWithCandidates   int            `json:"left_with_candidates"`
	CandidatesConsidered int            `json:"candidates_considered"`
	GateFailures         map[string]int `json:"gate_failures"`
	BelowMinScore        int            `json:"below_min_score"`
	PairsBeforeCap       int            `json:"pairs_before_cap"`
	SavedAfterCap        int            `json:"saved_after_cap"`
	Dropped              map[string]int `json:"dropped"`
	Created              int            `json:"created"`
	Updated              int            `json:"updated"`
	Unchanged            int            `json:"unchanged"`
	PersistFailures      int            `json:"persist_failures"`
}

func newCounters() Counters {
	c := Counters{
		GateFailures: make(map[string]int, len(scoring.Gates)),
		Dropped:      make(map[string]int, len(dedup.Reasons)),
	}
	for _, g := range scoring.Gates {
		c.GateFailures[string(g)] = 0
	}
	for _, r := range dedup.Reasons {
		c.Dropped[string(r)] = 0
	}
	return c
}

// EntityCoverage is how much of one entity's left-side markets got linked.
type EntityCoverage struct {
	Entity  string  `json:"entity"`
	Left    int     `json:"left"`
	Right   int     `json:"right"`
	Matched int     `json:"matched"`
	Rate    float64 `json:"rate"`
}

// SavedPair is one suggestion that survived every cap.
type SavedPair struct {
	LeftID  string  `json:"left_id"`
	RightID string  `json:"right_id"`
	Score   float64 `json:"score"`
	Tier    string  `json:"tier,omitempty"`
	Reason  string  `json:"reason"`
	LinkID  string  `json:"link_id,omitempty"`
}

// RunResult is the outcome of one matching run.
type RunResult struct {
	RunID       string           `json:"run_id"`
	Topic       string           `json:"topic"`
	AlgoVersion string           `json:"algo_version"`
	Kind        string           `json:"kind"`
	DryRun      bool             `json:"dry_run"`
	Aborted     bool             `json:"aborted"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Counters    Counters         `json:"counters"`
	Coverage    []EntityCoverage `json:"coverage"`
	Saved       []SavedPair      `json:"saved"`
	Errors      []string         `json:"errors"`
}

// Failed reports whether the run should be treated as unsuccessful.
func (r *RunResult) Failed() bool { return len(r.Errors) > 0 }

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

type coverageTally struct {
	left, right, matched map[string]int
}

func newCoverageTally() *coverageTally {
	return &coverageTally{
		left:    make(map[string]int),
		right:   make(map[string]int),
		matched: make(map[string]int),
	}
}

func (t *coverageTally) rows() []EntityCoverage {
	seen := make(map[string]bool)
	for e := range t.left {
		seen[e] = true
	}
	for e := range t.right {
		seen[e] = true
	}
	out := make([]EntityCoverage, 0, len(seen))
	for e := range seen {
		row := EntityCoverage{Entity: e, Left: t.left[e], Right: t.right[e], Matched: t.matched[e]}
		if row.Left > 0 {
			row.Rate = float64(row.Matched) / float64(row.Left)
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}
