// Package matcher runs one topic's cross-venue matching pass: fetch,
// fingerprint, index, score, cap and persist.
package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/dedup"
	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
	"github.com/alanyoungcy/marketlink/internal/scoring"
)

// MarketLister fetches eligible markets for one venue.
type MarketLister interface {
	ListEligible(ctx context.Context, venue domain.Venue, opts domain.EligibleOpts) ([]domain.EligibleMarket, error)
}

// LinkWriter is the part of the suggestion store a run writes through.
type LinkWriter interface {
	ConfirmedMarketIDs(ctx context.Context, venue domain.Venue, ids []string) (map[string]bool, error)
	UpsertBatch(ctx context.Context, ins []domain.SuggestionInput) ([]domain.UpsertResult, []error, error)
}

// Recorder observes finished runs (metrics).
type Recorder interface {
	ObserveRun(res *RunResult)
}

// Alerter is told about runs that finished with errors.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Engine executes matching runs. It holds no per-run state and may run
// several topics concurrently.
type Engine struct {
	markets  MarketLister
	links    LinkWriter
	archive  domain.BlobWriter
	recorder Recorder
	alerter  Alerter
	logger   *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Engine)

// WithArchive stores every run result as JSON in object storage.
func WithArchive(w domain.BlobWriter) Option { return func(e *Engine) { e.archive = w } }

// WithRecorder reports run results to a metrics recorder.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithAlerter notifies operators of runs that finished with errors.
func WithAlerter(a Alerter) Option { return func(e *Engine) { e.alerter = a } }

// NewEngine creates an Engine.
func NewEngine(markets MarketLister, links LinkWriter, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		markets: markets,
		links:   links,
		logger:  logger.With(slog.String("component", "matcher")),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// leftOutcome is the pure, pre-commit result for one left market.
type leftOutcome struct {
	skipped    bool
	considered int
	gates      map[scoring.Gate]int
	below      int
	passing    int
	kept       []dedup.Candidate
	drops      dedup.Drops
}

// Run executes one matching run. Operational failures (fetch, persistence,
// cancellation) are reported in RunResult.Errors rather than as an error;
// the returned error is non-nil only for an invalid configuration.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	res := &RunResult{
		RunID:       cfg.RunID,
		Topic:       cfg.Topic,
		AlgoVersion: cfg.AlgoVersion,
		Kind:        string(cfg.Kind),
		DryRun:      cfg.DryRun,
		StartedAt:   time.Now().UTC(),
		Counters:    newCounters(),
		Coverage:    []EntityCoverage{},
		Saved:       []SavedPair{},
		Errors:      []string{},
	}
	log := e.logger.With(
		slog.String("run_id", cfg.RunID),
		slog.String("topic", cfg.Topic),
	)
	log.InfoContext(ctx, "matcher: run started",
		slog.String("kind", string(cfg.Kind)),
		slog.String("left", string(cfg.LeftVenue)),
		slog.String("right", string(cfg.RightVenue)),
		slog.Bool("dry_run", cfg.DryRun),
	)

	left, right, err := e.fetch(ctx, cfg)
	if err != nil {
		res.Aborted = true
		res.Errors = append(res.Errors, err.Error())
		return e.finish(ctx, log, res), nil
	}
	res.Counters.LeftMarkets = len(left)
	res.Counters.RightMarkets = len(right)

	ex := fingerprint.NewExtractor(cfg.Tables, fingerprint.Options{BucketMinutes: cfg.BucketMinutes})
	leftFPs := extractAll(ex, left, cfg.Workers)
	// The right cap is first come first served, so commit order must not
	// depend on the store's ordering.
	sort.SliceStable(leftFPs, func(i, j int) bool { return leftFPs[i].MarketID < leftFPs[j].MarketID })
	rightFPs := extractAll(ex, right, cfg.Workers)
	index := candidate.Build(cfg.Kind, rightFPs, cfg.CandidateCap)

	confirmed, err := e.confirmed(ctx, cfg, left)
	if err != nil {
		res.Aborted = true
		res.Errors = append(res.Errors, err.Error())
		return e.finish(ctx, log, res), nil
	}

	outcomes, err := scoreAll(ctx, cfg, index, leftFPs, confirmed)
	if err != nil {
		res.Aborted = true
		res.Errors = append(res.Errors, fmt.Sprintf("matcher: scoring interrupted: %v", err))
		return e.finish(ctx, log, res), nil
	}

	e.commit(ctx, log, cfg, res, leftFPs, rightFPs, outcomes)
	return e.finish(ctx, log, res), nil
}

// fetch lists both venues concurrently. Either failing aborts the run.
func (e *Engine) fetch(ctx context.Context, cfg RunConfig) ([]domain.EligibleMarket, []domain.EligibleMarket, error) {
	var left, right []domain.EligibleMarket
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ms, err := e.markets.ListEligible(gctx, cfg.LeftVenue, cfg.Eligible)
		if err != nil {
			return fmt.Errorf("matcher: fetch %s markets: %w", cfg.LeftVenue, err)
		}
		left = ms
		return nil
	})
	g.Go(func() error {
		ms, err := e.markets.ListEligible(gctx, cfg.RightVenue, cfg.Eligible)
		if err != nil {
			return fmt.Errorf("matcher: fetch %s markets: %w", cfg.RightVenue, err)
		}
		right = ms
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (e *Engine) confirmed(ctx context.Context, cfg RunConfig, left []domain.EligibleMarket) (map[string]bool, error) {
	if len(left) == 0 {
		return map[string]bool{}, nil
	}
	ids := make([]string, len(left))
	for i, m := range left {
		ids[i] = m.ID
	}
	out, err := e.links.ConfirmedMarketIDs(ctx, cfg.LeftVenue, ids)
	if err != nil {
		return nil, fmt.Errorf("matcher: check confirmed links: %w", err)
	}
	return out, nil
}

func extractAll(ex *fingerprint.Extractor, ms []domain.EligibleMarket, workers int) []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, len(ms))
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range ms {
		g.Go(func() error {
			m := ms[i]
			out[i] = ex.Extract(m.ID, m.Title, m.CloseTime, m.Metadata)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// scoreAll scores and left-caps every left market in parallel. It touches
// no shared mutable state; the right cap happens in commit.
func scoreAll(ctx context.Context, cfg RunConfig, index *candidate.Index, lefts []fingerprint.Fingerprint, confirmed map[string]bool) ([]leftOutcome, error) {
	scorer := scoring.New(cfg.Kind, cfg.Scoring)
	policy := dedup.NewPolicy(cfg.Kind, cfg.Dedup)
	out := make([]leftOutcome, len(lefts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range lefts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			l := &lefts[i]
			if confirmed[l.MarketID] {
				out[i] = leftOutcome{skipped: true}
				return nil
			}
			out[i] = scoreLeft(cfg, scorer, policy, index, l)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func scoreLeft(cfg RunConfig, scorer scoring.Scorer, policy *dedup.Policy, index *candidate.Index, l *fingerprint.Fingerprint) leftOutcome {
	o := leftOutcome{gates: make(map[scoring.Gate]int)}
	var passing []dedup.Candidate
	for _, rid := range index.Candidates(l) {
		r, _ := index.Get(rid)
		o.considered++
		sr := scorer.Score(l, r)
		if !sr.Passed() {
			o.gates[sr.Gate]++
			continue
		}
		if sr.Score < cfg.MinScore {
			o.below++
			continue
		}
		passing = append(passing, dedup.Candidate{RightID: rid, Right: r, Result: sr})
	}
	o.passing = len(passing)
	o.kept, o.drops = policy.SelectLeft(passing)
	return o
}

// commit applies the right cap and persists, one left market at a time in
// market id order. Cancellation is honoured only between left markets.
func (e *Engine) commit(
	ctx context.Context,
	log *slog.Logger,
	cfg RunConfig,
	res *RunResult,
	lefts, rights []fingerprint.Fingerprint,
	outcomes []leftOutcome,
) {
	counter := dedup.NewMemoryCapCounter()
	cov := newCoverageTally()
	for i := range rights {
		for _, ent := range rights[i].Entities {
			cov.right[ent]++
		}
	}

	c := &res.Counters
	for i := range lefts {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("matcher: cancelled after %d of %d left markets: %v", i, len(lefts), err))
			break
		}
		l := &lefts[i]
		o := outcomes[i]
		if o.skipped {
			c.SkippedConfirmed++
			continue
		}
		for _, ent := range l.Entities {
			cov.left[ent]++
		}

		c.CandidatesConsidered += o.considered
		if o.considered > 0 {
			c.LeftWithCandidates++
		}
		for g, n := range o.gates {
			c.GateFailures[string(g)] += n
		}
		c.BelowMinScore += o.below
		c.PairsBeforeCap += o.passing

		kept, rdrops := dedup.ApplyRightCap(cfg.Kind, counter, cfg.Dedup.MaxPerRightKey, o.kept)
		for r, n := range o.drops {
			c.Dropped[string(r)] += n
		}
		for r, n := range rdrops {
			c.Dropped[string(r)] += n
		}
		c.SavedAfterCap += len(kept)
		if len(kept) > 0 {
			for _, ent := range l.Entities {
				cov.matched[ent]++
			}
		}

		pairs := make([]SavedPair, len(kept))
		for j, k := range kept {
			pairs[j] = SavedPair{LeftID: l.MarketID, RightID: k.RightID, Score: k.Result.Score, Tier: string(k.Result.Tier), Reason: k.Result.Reason}
		}
		if !cfg.DryRun && len(kept) > 0 {
			e.persist(ctx, log, cfg, res, l, kept, pairs)
		}
		res.Saved = append(res.Saved, pairs...)
	}
	res.Coverage = cov.rows()
}

func (e *Engine) persist(
	ctx context.Context,
	log *slog.Logger,
	cfg RunConfig,
	res *RunResult,
	l *fingerprint.Fingerprint,
	kept []dedup.Candidate,
	pairs []SavedPair,
) {
	ins := make([]domain.SuggestionInput, len(kept))
	for j, k := range kept {
		meta := k.Result.Meta()
		meta["intent"] = string(l.Intent)
		meta["kind"] = string(cfg.Kind)
		meta["run_id"] = cfg.RunID
		ins[j] = domain.SuggestionInput{
			LeftVenue:     cfg.LeftVenue,
			LeftMarketID:  l.MarketID,
			RightVenue:    cfg.RightVenue,
			RightMarketID: k.RightID,
			Score:         k.Result.Score,
			Reason:        k.Result.Reason,
			AlgoVersion:   cfg.AlgoVersion,
			Topic:         cfg.Topic,
			Meta:          meta,
		}
	}

	// The batch is written even if ctx is cancelled meanwhile, so a left
	// market is never half persisted.
	results, errs, err := e.links.UpsertBatch(context.WithoutCancel(ctx), ins)
	c := &res.Counters
	if err != nil {
		c.PersistFailures += len(ins)
		res.Errors = append(res.Errors, fmt.Sprintf("matcher: persist %s: %v", l.MarketID, err))
		log.ErrorContext(ctx, "matcher: persist batch failed",
			slog.String("left", l.MarketID),
			slog.String("error", err.Error()),
		)
		return
	}
	for j := range ins {
		if errs[j] != nil {
			c.PersistFailures++
			res.Errors = append(res.Errors, fmt.Sprintf("matcher: persist %s/%s: %v", l.MarketID, ins[j].RightMarketID, errs[j]))
			continue
		}
		r := results[j]
		pairs[j].LinkID = r.Link.ID
		switch {
		case r.Created:
			c.Created++
		case r.Unchanged:
			c.Unchanged++
		default:
			c.Updated++
		}
	}
}

// finish stamps the result, archives it, records metrics and alerts on
// errors. None of these side channels can fail the run.
func (e *Engine) finish(ctx context.Context, log *slog.Logger, res *RunResult) *RunResult {
	res.FinishedAt = time.Now().UTC()
	c := res.Counters

	if e.archive != nil {
		if err := e.archiveResult(ctx, res); err != nil {
			log.WarnContext(ctx, "matcher: archive failed", slog.String("error", err.Error()))
		}
	}
	if e.recorder != nil {
		e.recorder.ObserveRun(res)
	}
	if res.Failed() && e.alerter != nil {
		msg := fmt.Sprintf("run %s finished with %d error(s):\n%s", res.RunID, len(res.Errors), strings.Join(firstN(res.Errors, 5), "\n"))
		if err := e.alerter.Notify(ctx, "run_failed", "marketlink: "+res.Topic+" run failed", msg); err != nil {
			log.WarnContext(ctx, "matcher: alert failed", slog.String("error", err.Error()))
		}
	}

	level := slog.LevelInfo
	if res.Failed() {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "matcher: run complete",
		slog.Bool("aborted", res.Aborted),
		slog.Int("left", c.LeftMarkets),
		slog.Int("right", c.RightMarkets),
		slog.Int("skipped_confirmed", c.SkippedConfirmed),
		slog.Int("candidates", c.CandidatesConsidered),
		slog.Int("pairs_before_cap", c.PairsBeforeCap),
		slog.Int("saved", c.SavedAfterCap),
		slog.Int("created", c.Created),
		slog.Int("updated", c.Updated),
		slog.Int("errors", len(res.Errors)),
		slog.Duration("took", res.Duration()),
	)
	return res
}

// ArchivePath is the object key a run result is stored under.
func ArchivePath(res *RunResult) string {
	return fmt.Sprintf("reports/%s/%s/%s.json", res.Topic, res.StartedAt.Format("2006-01-02"), res.RunID)
}

func (e *Engine) archiveResult(ctx context.Context, res *RunResult) error {
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("matcher: marshal result: %w", err)
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := e.archive.Put(actx, ArchivePath(res), bytes.NewReader(body), "application/json"); err != nil {
		return fmt.Errorf("matcher: archive %s: %w", res.RunID, err)
	}
	return nil
}

func firstN(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[:n]
}
