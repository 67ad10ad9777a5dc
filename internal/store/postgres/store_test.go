package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// setupTestDB starts a throwaway Postgres, applies migrations, and returns a
// connected client.
func setupTestDB(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("marketlink"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.RunMigrations(ctx))
	// Second run is a no-op.
	require.NoError(t, client.RunMigrations(ctx))
	return client
}

func suggestion(left, right string, score float64) domain.SuggestionInput {
	return domain.SuggestionInput{
		LeftVenue:     domain.VenuePolymarket,
		LeftMarketID:  left,
		RightVenue:    domain.VenueKalshi,
		RightMarketID: right,
		Score:         score,
		Reason:        "general: test",
		AlgoVersion:   "general-v1",
		Topic:         "crypto",
		Meta:          map[string]string{"gate": "none", "tier": "STRONG"},
	}
}

func TestPostgresStores(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()

	links := NewLinkStore(client.Pool())
	markets := NewMarketStore(client.Pool())
	audit := NewAuditStore(client.Pool())

	t.Run("upsert creates then updates", func(t *testing.T) {
		res, err := links.Upsert(ctx, suggestion("pm-1", "k-1", 0.7), domain.UpsertOpts{})
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, domain.LinkSuggested, res.Link.Status)
		assert.Equal(t, "STRONG", res.Link.Meta["tier"])

		res2, err := links.Upsert(ctx, suggestion("pm-1", "k-1", 0.8), domain.UpsertOpts{})
		require.NoError(t, err)
		assert.False(t, res2.Created)
		assert.False(t, res2.Unchanged)
		assert.Equal(t, res.Link.ID, res2.Link.ID)
		assert.InDelta(t, 0.8, res2.Link.Score, 1e-9)
	})

	t.Run("confirmed links are immutable", func(t *testing.T) {
		res, err := links.Upsert(ctx, suggestion("pm-2", "k-2", 0.9), domain.UpsertOpts{})
		require.NoError(t, err)
		_, err = links.SetStatus(ctx, res.Link.ID, domain.LinkConfirmed)
		require.NoError(t, err)

		again, err := links.Upsert(ctx, suggestion("pm-2", "k-2", 0.1), domain.UpsertOpts{ReopenRejected: true})
		require.NoError(t, err)
		assert.True(t, again.Unchanged)
		assert.Equal(t, domain.LinkConfirmed, again.Link.Status)
		assert.InDelta(t, 0.9, again.Link.Score, 1e-9)

		ok, err := links.HasConfirmedLink(ctx, domain.VenueKalshi, "k-2")
		require.NoError(t, err)
		assert.True(t, ok)

		ids, err := links.ConfirmedMarketIDs(ctx, domain.VenuePolymarket, []string{"pm-1", "pm-2"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"pm-2": true}, ids)
	})

	t.Run("rejected reopen policy", func(t *testing.T) {
		res, err := links.Upsert(ctx, suggestion("pm-3", "k-3", 0.6), domain.UpsertOpts{})
		require.NoError(t, err)
		_, err = links.SetStatus(ctx, res.Link.ID, domain.LinkRejected)
		require.NoError(t, err)

		kept, err := links.Upsert(ctx, suggestion("pm-3", "k-3", 0.65), domain.UpsertOpts{ReopenRejected: false})
		require.NoError(t, err)
		assert.True(t, kept.Unchanged)
		assert.Equal(t, domain.LinkRejected, kept.Link.Status)

		reopened, err := links.Upsert(ctx, suggestion("pm-3", "k-3", 0.65), domain.UpsertOpts{ReopenRejected: true})
		require.NoError(t, err)
		assert.Equal(t, domain.LinkSuggested, reopened.Link.Status)
	})

	t.Run("batch isolates failures", func(t *testing.T) {
		bad := suggestion("pm-4", "k-bad", 0.5)
		bad.Score = 1.5
		results, errs, err := links.UpsertBatch(ctx, []domain.SuggestionInput{
			suggestion("pm-4", "k-4a", 0.7),
			bad,
			suggestion("pm-4", "k-4b", 0.6),
		}, domain.UpsertOpts{})
		require.NoError(t, err)
		assert.NoError(t, errs[0])
		assert.ErrorIs(t, errs[1], domain.ErrInvalidInput)
		assert.NoError(t, errs[2])
		assert.True(t, results[0].Created)
		assert.True(t, results[2].Created)
	})

	t.Run("status transitions", func(t *testing.T) {
		_, err := links.SetStatus(ctx, "missing", domain.LinkConfirmed)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = links.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		res, err := links.Upsert(ctx, suggestion("pm-5", "k-5", 0.5), domain.UpsertOpts{})
		require.NoError(t, err)
		_, err = links.SetStatus(ctx, res.Link.ID, domain.LinkSuggested)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("list and stats", func(t *testing.T) {
		minScore := 0.65
		got, err := links.List(ctx, domain.LinkFilter{Status: domain.LinkSuggested, Topic: "crypto", MinScore: &minScore})
		require.NoError(t, err)
		for _, l := range got {
			assert.GreaterOrEqual(t, l.Score, minScore)
			assert.Equal(t, domain.LinkSuggested, l.Status)
		}
		assert.NotEmpty(t, got)

		st, err := links.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), st.ByStatus[domain.LinkConfirmed])
		assert.Equal(t, st.Total, st.ByTopic["crypto"][domain.LinkSuggested]+
			st.ByTopic["crypto"][domain.LinkConfirmed]+st.ByTopic["crypto"][domain.LinkRejected])
	})

	t.Run("eligible markets", func(t *testing.T) {
		early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		late := early.AddDate(0, 1, 0)
		require.NoError(t, markets.UpsertBatch(ctx, []domain.EligibleMarket{
			{ID: "a", Venue: domain.VenuePolymarket, Title: "Bitcoin above 100k_%?", Category: "crypto", CloseTime: &late},
			{ID: "b", Venue: domain.VenuePolymarket, Title: "Will CPI rise?", Category: "macro", CloseTime: &early},
			{ID: "c", Venue: domain.VenuePolymarket, Title: "Bitcoin open", Category: "crypto"},
			{ID: "z", Venue: domain.VenueKalshi, Title: "Bitcoin elsewhere", Category: "crypto"},
		}))

		all, err := markets.ListEligible(ctx, domain.VenuePolymarket, domain.EligibleOpts{LookbackHours: 24})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"b", "a", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

		btc, err := markets.ListEligible(ctx, domain.VenuePolymarket, domain.EligibleOpts{
			TitleKeywords: []string{"BITCOIN"},
			Categories:    []string{"crypto"},
			Limit:         1,
		})
		require.NoError(t, err)
		require.Len(t, btc, 1)
		assert.Equal(t, "a", btc[0].ID)

		literal, err := markets.ListEligible(ctx, domain.VenuePolymarket, domain.EligibleOpts{TitleKeywords: []string{"100k_%"}})
		require.NoError(t, err)
		require.Len(t, literal, 1)
		assert.Equal(t, "a", literal[0].ID)
	})

	t.Run("audit log", func(t *testing.T) {
		require.NoError(t, audit.Log(ctx, "link.confirmed", map[string]any{"link_id": "x", "actor": "ops"}))
		require.NoError(t, audit.Log(ctx, "link.rejected", nil))

		entries, err := audit.List(ctx, domain.ListOpts{Limit: 10})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "link.rejected", entries[0].Event)
		assert.Equal(t, "ops", entries[1].Detail["actor"])
	})
}
