package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/cache/memory"
	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/dedup"
	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/matcher"
	"github.com/alanyoungcy/marketlink/internal/policy"
	"github.com/alanyoungcy/marketlink/internal/scoring"
	"github.com/alanyoungcy/marketlink/internal/service"
	memstore "github.com/alanyoungcy/marketlink/internal/store/memory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type env struct {
	links *memstore.LinkStore
	locks *memory.LockManager
	sched *Scheduler
}

func newEnv(t *testing.T, applyPolicy bool) *env {
	t.Helper()
	close1 := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	close2 := time.Date(2025, 12, 31, 22, 0, 0, 0, time.UTC)

	markets := memstore.NewMarketStore()
	markets.Put(
		domain.EligibleMarket{ID: "pm-1", Venue: domain.VenuePolymarket, Title: "Bitcoin above $100,000 on Dec 31, 2025?", CloseTime: &close1},
		domain.EligibleMarket{ID: "k-1", Venue: domain.VenueKalshi, Title: "BTC > $100k by end of Dec 2025", CloseTime: &close2},
	)
	links := memstore.NewLinkStore()
	svc := service.NewLinkService(links, memstore.NewAuditStore(), nil, service.LinkServiceOpts{ReopenRejected: true}, discard())
	engine := matcher.NewEngine(markets, svc, discard())
	locks := memory.NewLockManager()

	topic := Topic{
		Name:     "crypto",
		Interval: time.Hour,
		Run: matcher.RunConfig{
			LeftVenue:  domain.VenuePolymarket,
			RightVenue: domain.VenueKalshi,
			Kind:       candidate.KindGeneral,
			MinScore:   0.6,
			Scoring:    scoring.DefaultConfig(),
			Dedup:      dedup.DefaultConfig(),
		},
		Policy:      policy.Config{ConfirmMinScore: 0.6},
		ApplyPolicy: applyPolicy,
	}
	sched := NewScheduler(engine, policy.NewEngine(svc, discard()), locks, []Topic{topic}, Options{}, discard())
	return &env{links: links, locks: locks, sched: sched}
}

func (e *env) statuses(t *testing.T) []domain.LinkStatus {
	t.Helper()
	ls, err := e.links.List(context.Background(), domain.LinkFilter{})
	require.NoError(t, err)
	out := make([]domain.LinkStatus, len(ls))
	for i, l := range ls {
		out[i] = l.Status
	}
	return out
}

func TestRunTopic_UnknownAndBusy(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	_, err := e.sched.RunTopic(ctx, "nope", false)
	assert.ErrorIs(t, err, ErrUnknownTopic)

	release, err := e.locks.Acquire(ctx, "topic:crypto", time.Minute)
	require.NoError(t, err)
	_, err = e.sched.RunTopic(ctx, "crypto", false)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	release()

	res, err := e.sched.RunTopic(ctx, "crypto", true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, "crypto", res.Topic)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, e.statuses(t))

	last, ok := e.sched.Last("crypto")
	require.True(t, ok)
	assert.Equal(t, res.RunID, last.RunID)
}

func TestRunAll_AppliesPolicyWhenEnabled(t *testing.T) {
	e := newEnv(t, true)
	results, err := e.sched.RunAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Counters.Created)
	assert.Equal(t, []domain.LinkStatus{domain.LinkConfirmed}, e.statuses(t))
}

func TestRunAll_PolicyReportOnly(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.sched.RunAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkStatus{domain.LinkSuggested}, e.statuses(t))

	reports, err := e.sched.RunPolicy(context.Background(), "crypto", policy.Options{Explain: true})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Eligible)
	assert.True(t, reports[0].DryRun)
	assert.True(t, reports[1].Disabled)
}

func TestRunAll_SkipsBusyTopic(t *testing.T) {
	e := newEnv(t, false)
	release, err := e.locks.Acquire(context.Background(), "topic:crypto", time.Minute)
	require.NoError(t, err)
	defer release()

	results, err := e.sched.RunAll(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, results)
}

type countingRunner struct{ n atomic.Int32 }

func (r *countingRunner) Run(_ context.Context, cfg matcher.RunConfig) (*matcher.RunResult, error) {
	r.n.Add(1)
	return &matcher.RunResult{Topic: cfg.Topic, RunID: cfg.RunID, DryRun: true}, nil
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	runner := &countingRunner{}
	sched := NewScheduler(runner, nil, memory.NewLockManager(), []Topic{
		{Name: "a", Interval: time.Hour},
		{Name: "manual"},
	}, Options{}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	require.Eventually(t, func() bool { return runner.n.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, []string{"a", "manual"}, sched.Topics())
}

func TestSummary(t *testing.T) {
	s := Summary(&matcher.RunResult{Topic: "macro", RunID: "r1", DryRun: true, Errors: []string{"x"}})
	assert.Contains(t, s, "macro run r1")
	assert.Contains(t, s, "(dry run)")
	assert.Contains(t, s, "errors=1")
}
