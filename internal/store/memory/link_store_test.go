package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

func suggestion(left, right string, score float64) domain.SuggestionInput {
	return domain.SuggestionInput{
		LeftVenue:     domain.VenuePolymarket,
		LeftMarketID:  left,
		RightVenue:    domain.VenueKalshi,
		RightMarketID: right,
		Score:         score,
		Reason:        "test",
		AlgoVersion:   "v1",
		Topic:         "crypto",
	}
}

func TestLinkStore_UpsertCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore()

	res, err := store.Upsert(ctx, suggestion("pm-1", "k-1", 0.7), domain.UpsertOpts{})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, domain.LinkSuggested, res.Link.Status)
	assert.NotEmpty(t, res.Link.ID)

	again, err := store.Upsert(ctx, suggestion("pm-1", "k-1", 0.8), domain.UpsertOpts{})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Link.ID, again.Link.ID)
	assert.Equal(t, 0.8, again.Link.Score)

	links, err := store.List(ctx, domain.LinkFilter{})
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestLinkStore_ConfirmedIsImmutable(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore()

	res, err := store.Upsert(ctx, suggestion("pm-1", "k-1", 0.7), domain.UpsertOpts{})
	require.NoError(t, err)
	confirmed, err := store.SetStatus(ctx, res.Link.ID, domain.LinkConfirmed)
	require.NoError(t, err)

	for _, score := range []float64{0, 0.2, 0.99} {
		in := suggestion("pm-1", "k-1", score)
		in.Reason = "different"
		got, err := store.Upsert(ctx, in, domain.UpsertOpts{ReopenRejected: true})
		require.NoError(t, err)
		assert.True(t, got.Unchanged)
		assert.Equal(t, confirmed.Score, got.Link.Score)
		assert.Equal(t, confirmed.Reason, got.Link.Reason)
		assert.Equal(t, domain.LinkConfirmed, got.Link.Status)
	}
}

func TestLinkStore_ReopenRejected(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore()

	res, err := store.Upsert(ctx, suggestion("pm-1", "k-1", 0.7), domain.UpsertOpts{})
	require.NoError(t, err)
	_, err = store.SetStatus(ctx, res.Link.ID, domain.LinkRejected)
	require.NoError(t, err)

	kept, err := store.Upsert(ctx, suggestion("pm-1", "k-1", 0.9), domain.UpsertOpts{ReopenRejected: false})
	require.NoError(t, err)
	assert.True(t, kept.Unchanged)
	assert.Equal(t, domain.LinkRejected, kept.Link.Status)

	reopened, err := store.Upsert(ctx, suggestion("pm-1", "k-1", 0.9), domain.UpsertOpts{ReopenRejected: true})
	require.NoError(t, err)
	assert.False(t, reopened.Unchanged)
	assert.Equal(t, domain.LinkSuggested, reopened.Link.Status)
	assert.Equal(t, 0.9, reopened.Link.Score)
}

func TestLinkStore_UpsertBatchReportsPerItem(t *testing.T) {
	store := NewLinkStore()
	ins := []domain.SuggestionInput{
		suggestion("pm-1", "k-1", 0.7),
		suggestion("pm-1", "", 0.7),
		suggestion("pm-1", "k-2", 1.5),
		suggestion("pm-1", "k-3", 0.6),
	}

	results, errs, err := store.UpsertBatch(context.Background(), ins, domain.UpsertOpts{})
	require.NoError(t, err)
	require.Len(t, errs, 4)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], domain.ErrInvalidInput)
	assert.ErrorIs(t, errs[2], domain.ErrInvalidInput)
	assert.NoError(t, errs[3])
	assert.True(t, results[0].Created)
	assert.True(t, results[3].Created)
}

func TestLinkStore_SetStatus(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore()

	_, err := store.SetStatus(ctx, "missing", domain.LinkConfirmed)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := store.Upsert(ctx, suggestion("pm-1", "k-1", 0.7), domain.UpsertOpts{})
	require.NoError(t, err)
	_, err = store.SetStatus(ctx, res.Link.ID, domain.LinkSuggested)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestLinkStore_ConfirmedMarketIDs(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore()

	a, err := store.Upsert(ctx, suggestion("pm-1", "k-1", 0.7), domain.UpsertOpts{})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, suggestion("pm-2", "k-2", 0.7), domain.UpsertOpts{})
	require.NoError(t, err)
	_, err = store.SetStatus(ctx, a.Link.ID, domain.LinkConfirmed)
	require.NoError(t, err)

	ids, err := store.ConfirmedMarketIDs(ctx, domain.VenuePolymarket, []string{"pm-1", "pm-2", "pm-3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"pm-1": true}, ids)

	ok, err := store.HasConfirmedLink(ctx, domain.VenueKalshi, "k-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasConfirmedLink(ctx, domain.VenueKalshi, "k-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLinkStore_ListAndStats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewLinkStoreWithClock(func() time.Time { return now })

	for i, score := range []float64{0.3, 0.6, 0.9} {
		in := suggestion("pm", string(rune('a'+i)), score)
		if i == 2 {
			in.Topic = "macro"
		}
		_, err := store.Upsert(ctx, in, domain.UpsertOpts{})
		require.NoError(t, err)
		now = now.Add(time.Hour)
	}

	minScore := 0.5
	links, err := store.List(ctx, domain.LinkFilter{MinScore: &minScore})
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, 0.9, links[0].Score, "newest first")

	links, err = store.List(ctx, domain.LinkFilter{Topic: "crypto", Limit: 1})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 0.6, links[0].Score)

	before := time.Date(2026, 1, 1, 1, 30, 0, 0, time.UTC)
	links, err = store.List(ctx, domain.LinkFilter{UpdatedBefore: &before})
	require.NoError(t, err)
	assert.Len(t, links, 2)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Total)
	assert.Equal(t, int64(3), st.ByStatus[domain.LinkSuggested])
	assert.Equal(t, int64(2), st.ByTopic["crypto"][domain.LinkSuggested])
}

func TestMarketStore_ListEligible(t *testing.T) {
	ctx := context.Background()
	store := NewMarketStore()
	now := time.Now().UTC()
	c1 := now.Add(48 * time.Hour)
	c2 := now.Add(24 * time.Hour)

	store.Put(
		domain.EligibleMarket{ID: "a", Venue: domain.VenueKalshi, Title: "Bitcoin above 100k", Category: "crypto", CloseTime: &c1},
		domain.EligibleMarket{ID: "b", Venue: domain.VenueKalshi, Title: "ETH above 4k", Category: "crypto", CloseTime: &c2},
		domain.EligibleMarket{ID: "c", Venue: domain.VenueKalshi, Title: "CPI in January", Category: "economics"},
		domain.EligibleMarket{ID: "old", Venue: domain.VenueKalshi, Title: "Bitcoin 2020", UpdatedAt: now.Add(-72 * time.Hour)},
	)

	all, err := store.ListEligible(ctx, domain.VenueKalshi, domain.EligibleOpts{LookbackHours: 24})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].ID, "earliest close first")
	assert.Equal(t, "c", all[2].ID, "no close time last")

	btc, err := store.ListEligible(ctx, domain.VenueKalshi, domain.EligibleOpts{TitleKeywords: []string{"BITCOIN"}})
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	crypto, err := store.ListEligible(ctx, domain.VenueKalshi, domain.EligibleOpts{Categories: []string{"crypto"}, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, crypto, 1)

	none, err := store.ListEligible(ctx, domain.VenuePolymarket, domain.EligibleOpts{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
