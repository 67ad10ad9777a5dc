// Package policy promotes high-confidence suggestions to confirmed and
// retires stale low-confidence ones. Both passes are dry runs unless Apply
// is set.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// Config holds one topic's thresholds.
type Config struct {
	ConfirmMinScore    float64       `toml:"confirm_min_score"`
	RequireStrongTier  bool          `toml:"require_strong_tier"`
	RequireExactPeriod bool          `toml:"require_exact_period"`
	RequireGateNone    bool          `toml:"require_gate_none"`
	RejectBelowScore   float64       `toml:"reject_below_score"`
	RejectMinAge       time.Duration `toml:"-"`
}

// Options controls a pass.
type Options struct {
	Apply   bool
	Explain bool
	Actor   string
	Limit   int
}

// Check is one predicate evaluated against a link.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Decision is the outcome for one link.
type Decision struct {
	LinkID   string  `json:"link_id"`
	Left     string  `json:"left"`
	Right    string  `json:"right"`
	Score    float64 `json:"score"`
	Eligible bool    `json:"eligible"`
	Applied  bool    `json:"applied"`
	Checks   []Check `json:"checks,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Report summarises one pass.
type Report struct {
	Pass      string     `json:"pass"`
	Topic     string     `json:"topic"`
	DryRun    bool       `json:"dry_run"`
	Disabled  bool       `json:"disabled"`
	Scanned   int        `json:"scanned"`
	Eligible  int        `json:"eligible"`
	Applied   int        `json:"applied"`
	Failed    int        `json:"failed"`
	Decisions []Decision `json:"decisions"`
}

const (
	PassConfirm = "auto_confirm"
	PassReject  = "auto_reject"
)

// LinkManager is the slice of the link service a pass needs.
type LinkManager interface {
	List(ctx context.Context, f domain.LinkFilter) ([]domain.Link, error)
	Transition(ctx context.Context, id string, status domain.LinkStatus, actor string, detail map[string]any) (domain.Link, error)
}

// Engine runs policy passes.
type Engine struct {
	links  LinkManager
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates a policy Engine.
func NewEngine(links LinkManager, logger *slog.Logger) *Engine {
	return &Engine{
		links:  links,
		now:    time.Now,
		logger: logger.With(slog.String("component", "policy")),
	}
}

// AutoConfirm promotes suggestions that clear every confirm predicate.
// A ConfirmMinScore of zero disables the pass.
func (e *Engine) AutoConfirm(ctx context.Context, topic string, cfg Config, opts Options) (*Report, error) {
	if cfg.ConfirmMinScore <= 0 {
		return &Report{Pass: PassConfirm, Topic: topic, DryRun: !opts.Apply, Disabled: true, Decisions: []Decision{}}, nil
	}
	return e.run(ctx, PassConfirm, topic, opts, domain.LinkConfirmed, func(l domain.Link) []Check {
		return ConfirmChecks(l, cfg)
	})
}

// AutoReject retires old suggestions scoring under RejectBelowScore. A
// floor of zero disables the pass.
func (e *Engine) AutoReject(ctx context.Context, topic string, cfg Config, opts Options) (*Report, error) {
	if cfg.RejectBelowScore <= 0 {
		return &Report{Pass: PassReject, Topic: topic, DryRun: !opts.Apply, Disabled: true, Decisions: []Decision{}}, nil
	}
	now := e.now()
	return e.run(ctx, PassReject, topic, opts, domain.LinkRejected, func(l domain.Link) []Check {
		return RejectChecks(l, cfg, now)
	})
}

func (e *Engine) run(
	ctx context.Context,
	pass, topic string,
	opts Options,
	target domain.LinkStatus,
	checks func(domain.Link) []Check,
) (*Report, error) {
	links, err := e.links.List(ctx, domain.LinkFilter{Status: domain.LinkSuggested, Topic: topic, Limit: opts.Limit})
	if err != nil {
		return nil, fmt.Errorf("policy: %s list %s: %w", pass, topic, err)
	}

	rep := &Report{Pass: pass, Topic: topic, DryRun: !opts.Apply, Decisions: []Decision{}}
	actor := opts.Actor
	if actor == "" {
		actor = pass
	}
	for _, l := range links {
		rep.Scanned++
		cs := checks(l)
		d := Decision{
			LinkID:   l.ID,
			Left:     string(l.LeftVenue) + ":" + l.LeftMarketID,
			Right:    string(l.RightVenue) + ":" + l.RightMarketID,
			Score:    l.Score,
			Eligible: allPassed(cs),
		}
		if opts.Explain {
			d.Checks = cs
		}
		if d.Eligible {
			rep.Eligible++
			if opts.Apply {
				detail := map[string]any{"policy": pass, "score": l.Score}
				if _, err := e.links.Transition(ctx, l.ID, target, actor, detail); err != nil {
					rep.Failed++
					d.Error = err.Error()
				} else {
					rep.Applied++
					d.Applied = true
				}
			}
		}
		if d.Eligible || opts.Explain {
			rep.Decisions = append(rep.Decisions, d)
		}
	}

	e.logger.InfoContext(ctx, "policy: pass complete",
		slog.String("pass", pass),
		slog.String("topic", topic),
		slog.Bool("dry_run", rep.DryRun),
		slog.Int("scanned", rep.Scanned),
		slog.Int("eligible", rep.Eligible),
		slog.Int("applied", rep.Applied),
		slog.Int("failed", rep.Failed),
	)
	return rep, nil
}

// ConfirmChecks evaluates the auto-confirm predicates.
func ConfirmChecks(l domain.Link, cfg Config) []Check {
	cs := []Check{
		statusCheck(l),
		{
			Name:   "score_at_least",
			Passed: l.Score >= cfg.ConfirmMinScore,
			Detail: fmt.Sprintf("%.4f >= %.4f", l.Score, cfg.ConfirmMinScore),
		},
	}
	if cfg.RequireGateNone {
		cs = append(cs, metaCheck(l, "gate", "none"))
	}
	if cfg.RequireStrongTier {
		cs = append(cs, metaCheck(l, "tier", "STRONG"))
	}
	if cfg.RequireExactPeriod {
		cs = append(cs, metaCheck(l, "compat", "exact"))
	}
	return cs
}

// RejectChecks evaluates the auto-reject predicates at time now.
func RejectChecks(l domain.Link, cfg Config, now time.Time) []Check {
	age := now.Sub(l.UpdatedAt)
	return []Check{
		statusCheck(l),
		{
			Name:   "score_below",
			Passed: l.Score < cfg.RejectBelowScore,
			Detail: fmt.Sprintf("%.4f < %.4f", l.Score, cfg.RejectBelowScore),
		},
		{
			Name:   "older_than",
			Passed: age >= cfg.RejectMinAge,
			Detail: fmt.Sprintf("age %s >= %s", age.Truncate(time.Second), cfg.RejectMinAge),
		},
	}
}

func statusCheck(l domain.Link) Check {
	return Check{
		Name:   "status_suggested",
		Passed: l.Status == domain.LinkSuggested,
		Detail: string(l.Status),
	}
}

func metaCheck(l domain.Link, key, want string) Check {
	got := l.Meta[key]
	return Check{
		Name:   key + "_is_" + want,
		Passed: got == want,
		Detail: fmt.Sprintf("%s=%q", key, got),
	}
}

func allPassed(cs []Check) bool {
	for _, c := range cs {
		if !c.Passed {
			return false
		}
	}
	return true
}
