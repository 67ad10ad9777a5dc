package policy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/service"
	"github.com/alanyoungcy/marketlink/internal/store/memory"
)

var base = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	links *memory.LinkStore
	audit *memory.AuditStore
	svc   *service.LinkService
	eng   *Engine
	ids   map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	links := memory.NewLinkStoreWithClock(func() time.Time { return base })
	audit := memory.NewAuditStore()
	svc := service.NewLinkService(links, audit, nil, service.LinkServiceOpts{ReopenRejected: true}, logger)
	eng := NewEngine(svc, logger)
	eng.now = func() time.Time { return base.Add(72 * time.Hour) }

	f := &fixture{links: links, audit: audit, svc: svc, eng: eng, ids: map[string]string{}}
	seed := []struct {
		left  string
		score float64
		meta  map[string]string
	}{
		{"strong", 0.92, map[string]string{"gate": "none", "tier": "STRONG", "compat": "exact"}},
		{"weak", 0.91, map[string]string{"gate": "none", "tier": "WEAK", "compat": "month_in_year"}},
		{"mid", 0.70, map[string]string{"gate": "none", "tier": "STRONG", "compat": "exact"}},
		{"low", 0.31, map[string]string{"gate": "none"}},
	}
	for _, s := range seed {
		res, err := svc.Upsert(context.Background(), domain.SuggestionInput{
			LeftVenue:     domain.VenuePolymarket,
			LeftMarketID:  s.left,
			RightVenue:    domain.VenueKalshi,
			RightMarketID: "k-" + s.left,
			Score:         s.score,
			Reason:        "test",
			AlgoVersion:   "macro-v1",
			Topic:         "macro",
			Meta:          s.meta,
		})
		require.NoError(t, err)
		f.ids[s.left] = res.Link.ID
	}
	return f
}

func (f *fixture) status(t *testing.T, left string) domain.LinkStatus {
	t.Helper()
	l, err := f.links.GetByID(context.Background(), f.ids[left])
	require.NoError(t, err)
	return l.Status
}

func TestAutoConfirm_DryRunByDefault(t *testing.T) {
	f := newFixture(t)
	cfg := Config{ConfirmMinScore: 0.9}

	rep, err := f.eng.AutoConfirm(context.Background(), "macro", cfg, Options{})
	require.NoError(t, err)

	assert.True(t, rep.DryRun)
	assert.Equal(t, 4, rep.Scanned)
	assert.Equal(t, 2, rep.Eligible)
	assert.Zero(t, rep.Applied)
	assert.Len(t, rep.Decisions, 2)
	assert.Equal(t, domain.LinkSuggested, f.status(t, "strong"))
}

func TestAutoConfirm_ApplyWithStrictPredicates(t *testing.T) {
	f := newFixture(t)
	cfg := Config{ConfirmMinScore: 0.9, RequireStrongTier: true, RequireExactPeriod: true, RequireGateNone: true}

	rep, err := f.eng.AutoConfirm(context.Background(), "macro", cfg, Options{Apply: true})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Eligible)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, domain.LinkConfirmed, f.status(t, "strong"))
	assert.Equal(t, domain.LinkSuggested, f.status(t, "weak"))

	entries, err := f.audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "link.confirmed", entries[0].Event)
	assert.Equal(t, PassConfirm, entries[0].Detail["actor"])
	assert.Equal(t, PassConfirm, entries[0].Detail["policy"])

	// A second pass finds nothing left to confirm.
	rep, err = f.eng.AutoConfirm(context.Background(), "macro", cfg, Options{Apply: true})
	require.NoError(t, err)
	assert.Zero(t, rep.Applied)
	assert.Equal(t, 3, rep.Scanned)
}

func TestAutoConfirm_ExplainListsEveryCheck(t *testing.T) {
	f := newFixture(t)
	cfg := Config{ConfirmMinScore: 0.9, RequireStrongTier: true}

	rep, err := f.eng.AutoConfirm(context.Background(), "macro", cfg, Options{Explain: true})
	require.NoError(t, err)
	require.Len(t, rep.Decisions, 4)

	byID := map[string]Decision{}
	for _, d := range rep.Decisions {
		byID[d.LinkID] = d
	}
	weak := byID[f.ids["weak"]]
	assert.False(t, weak.Eligible)
	require.Len(t, weak.Checks, 3)
	assert.Equal(t, "tier_is_STRONG", weak.Checks[2].Name)
	assert.False(t, weak.Checks[2].Passed)
	assert.Equal(t, `tier="WEAK"`, weak.Checks[2].Detail)

	assert.True(t, byID[f.ids["strong"]].Eligible)
}

func TestAutoConfirm_DisabledWithoutThreshold(t *testing.T) {
	f := newFixture(t)
	rep, err := f.eng.AutoConfirm(context.Background(), "macro", Config{}, Options{Apply: true})
	require.NoError(t, err)
	assert.True(t, rep.Disabled)
	assert.Zero(t, rep.Scanned)
}

func TestAutoReject_RespectsAge(t *testing.T) {
	f := newFixture(t)
	cfg := Config{RejectBelowScore: 0.5, RejectMinAge: 24 * time.Hour}

	rep, err := f.eng.AutoReject(context.Background(), "macro", cfg, Options{Apply: true})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, domain.LinkRejected, f.status(t, "low"))
	assert.Equal(t, domain.LinkSuggested, f.status(t, "mid"))

	// Too young to retire.
	g := newFixture(t)
	cfg.RejectMinAge = 7 * 24 * time.Hour
	rep, err = g.eng.AutoReject(context.Background(), "macro", cfg, Options{Apply: true})
	require.NoError(t, err)
	assert.Zero(t, rep.Eligible)
	assert.Equal(t, domain.LinkSuggested, g.status(t, "low"))
}

func TestAutoReject_OtherTopicUntouched(t *testing.T) {
	f := newFixture(t)
	rep, err := f.eng.AutoReject(context.Background(), "crypto", Config{RejectBelowScore: 0.99}, Options{Apply: true})
	require.NoError(t, err)
	assert.Zero(t, rep.Scanned)
}

func TestRejectChecks(t *testing.T) {
	l := domain.Link{Status: domain.LinkConfirmed, Score: 0.1, UpdatedAt: base}
	cs := RejectChecks(l, Config{RejectBelowScore: 0.5}, base)
	require.Len(t, cs, 3)
	assert.False(t, cs[0].Passed)
	assert.True(t, cs[1].Passed)
	assert.True(t, cs[2].Passed)
	assert.False(t, allPassed(cs))
}
