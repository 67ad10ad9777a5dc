// Package pipeline schedules matching runs and auto-policy passes per topic.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/matcher"
	"github.com/alanyoungcy/marketlink/internal/policy"
)

// ErrUnknownTopic is returned for a topic that is not configured.
var ErrUnknownTopic = errors.New("unknown topic")

// Topic is one scheduled matching profile.
type Topic struct {
	Name     string
	Interval time.Duration // zero disables scheduling; manual runs still work
	Run      matcher.RunConfig
	Policy   policy.Config
	// ApplyPolicy lets scheduled runs mutate link status; otherwise the
	// policy passes only report.
	ApplyPolicy bool
}

// Runner executes one matching run.
type Runner interface {
	Run(ctx context.Context, cfg matcher.RunConfig) (*matcher.RunResult, error)
}

// PolicyRunner executes auto-policy passes.
type PolicyRunner interface {
	AutoConfirm(ctx context.Context, topic string, cfg policy.Config, opts policy.Options) (*policy.Report, error)
	AutoReject(ctx context.Context, topic string, cfg policy.Config, opts policy.Options) (*policy.Report, error)
}

// PolicyRecorder observes policy passes (metrics).
type PolicyRecorder interface {
	ObservePolicy(rep *policy.Report)
}

// Scheduler runs each topic on its interval under a per-topic lock, so a
// topic never has two runs in flight across every process sharing the lock
// backend.
type Scheduler struct {
	runner   Runner
	policy   PolicyRunner
	locks    domain.LockManager
	recorder PolicyRecorder
	topics   map[string]Topic
	lockTTL  time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	last map[string]*matcher.RunResult
}

// Options configures a Scheduler.
type Options struct {
	LockTTL  time.Duration
	Recorder PolicyRecorder
}

// NewScheduler creates a Scheduler. policyRunner and the recorder may be nil.
func NewScheduler(
	runner Runner,
	policyRunner PolicyRunner,
	locks domain.LockManager,
	topics []Topic,
	opts Options,
	logger *slog.Logger,
) *Scheduler {
	byName := make(map[string]Topic, len(topics))
	for _, t := range topics {
		byName[t.Name] = t
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		policy:   policyRunner,
		locks:    locks,
		recorder: opts.Recorder,
		topics:   byName,
		lockTTL:  ttl,
		logger:   logger.With(slog.String("component", "scheduler")),
		last:     make(map[string]*matcher.RunResult),
	}
}

// Topics returns the configured topic names, sorted.
func (s *Scheduler) Topics() []string {
	names := make([]string, 0, len(s.topics))
	for n := range s.topics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Last returns the most recent result for topic, if any.
func (s *Scheduler) Last(topic string) (*matcher.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[topic]
	return r, ok
}

// RunTopic executes one matching run for topic under its lock. It returns
// domain.ErrLockHeld when another run of the topic is in flight.
func (s *Scheduler) RunTopic(ctx context.Context, name string, dryRun bool) (*matcher.RunResult, error) {
	t, ok := s.topics[name]
	if !ok {
		return nil, fmt.Errorf("pipeline: run %s: %w", name, ErrUnknownTopic)
	}

	unlock, err := s.locks.Acquire(ctx, "topic:"+name, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: lock %s: %w", name, err)
	}
	defer unlock()

	cfg := t.Run
	cfg.Topic = name
	cfg.RunID = uuid.NewString()
	cfg.DryRun = cfg.DryRun || dryRun

	res, err := s.runner.Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: run %s: %w", name, err)
	}

	s.mu.Lock()
	s.last[name] = res
	s.mu.Unlock()
	return res, nil
}

// RunPolicy executes the auto-confirm and auto-reject passes for topic.
func (s *Scheduler) RunPolicy(ctx context.Context, name string, opts policy.Options) ([]*policy.Report, error) {
	t, ok := s.topics[name]
	if !ok {
		return nil, fmt.Errorf("pipeline: policy %s: %w", name, ErrUnknownTopic)
	}
	if s.policy == nil {
		return nil, nil
	}

	confirm, err := s.policy.AutoConfirm(ctx, name, t.Policy, opts)
	if err != nil {
		return nil, fmt.Errorf("pipeline: auto-confirm %s: %w", name, err)
	}
	reject, err := s.policy.AutoReject(ctx, name, t.Policy, opts)
	if err != nil {
		return []*policy.Report{confirm}, fmt.Errorf("pipeline: auto-reject %s: %w", name, err)
	}

	reports := []*policy.Report{confirm, reject}
	if s.recorder != nil {
		for _, r := range reports {
			s.recorder.ObservePolicy(r)
		}
	}
	return reports, nil
}

// RunAll runs every configured topic once, sequentially, followed by its
// policy passes. A topic whose lock is held is skipped.
func (s *Scheduler) RunAll(ctx context.Context, dryRun bool) ([]*matcher.RunResult, error) {
	var (
		results []*matcher.RunResult
		errs    []error
	)
	for _, name := range s.Topics() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.tick(ctx, name, dryRun)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// Start runs every topic with a positive interval, once immediately and then
// on each tick, until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	scheduled := 0
	for _, name := range s.Topics() {
		t := s.topics[name]
		if t.Interval <= 0 {
			continue
		}
		scheduled++
		g.Go(func() error {
			s.loop(ctx, t.Name, t.Interval)
			return nil
		})
	}
	s.logger.InfoContext(ctx, "scheduler: started", slog.Int("topics", scheduled))
	err := g.Wait()
	s.logger.InfoContext(context.WithoutCancel(ctx), "scheduler: stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration) {
	if _, err := s.tick(ctx, name, false); err != nil {
		s.logTickError(ctx, name, err)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.tick(ctx, name, false); err != nil {
				s.logTickError(ctx, name, err)
			}
		}
	}
}

// tick is one scheduled unit: a run, then the policy passes when the run
// persisted cleanly.
func (s *Scheduler) tick(ctx context.Context, name string, dryRun bool) (*matcher.RunResult, error) {
	res, err := s.RunTopic(ctx, name, dryRun)
	if errors.Is(err, domain.ErrLockHeld) {
		s.logger.InfoContext(ctx, "scheduler: topic busy, skipping", slog.String("topic", name))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if res.Failed() || res.DryRun {
		return res, nil
	}

	t := s.topics[name]
	reports, err := s.RunPolicy(ctx, name, policy.Options{Apply: t.ApplyPolicy})
	if err != nil {
		return res, err
	}
	for _, r := range reports {
		if r.Disabled {
			continue
		}
		s.logger.InfoContext(ctx, "scheduler: policy pass",
			slog.String("topic", name),
			slog.String("pass", r.Pass),
			slog.Int("eligible", r.Eligible),
			slog.Int("applied", r.Applied),
		)
	}
	return res, nil
}

func (s *Scheduler) logTickError(ctx context.Context, name string, err error) {
	if ctx.Err() != nil {
		return
	}
	s.logger.ErrorContext(ctx, "scheduler: tick failed",
		slog.String("topic", name),
		slog.String("error", err.Error()),
	)
}

// Summary formats a one-line description of res for CLI output.
func Summary(res *matcher.RunResult) string {
	c := res.Counters
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s: left=%d right=%d candidates=%d saved=%d created=%d updated=%d",
		res.Topic, res.RunID, c.LeftMarkets, c.RightMarkets, c.CandidatesConsidered,
		c.SavedAfterCap, c.Created, c.Updated)
	if res.DryRun {
		b.WriteString(" (dry run)")
	}
	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, " errors=%d", len(res.Errors))
	}
	return b.String()
}
