package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

type fakeFetcher struct {
	venue   domain.Venue
	markets []domain.EligibleMarket
	err     error
}

func (f *fakeFetcher) Venue() domain.Venue { return f.venue }

func (f *fakeFetcher) ListOpenMarkets(context.Context) ([]domain.EligibleMarket, error) {
	return f.markets, f.err
}

type fakeImporter struct {
	got []domain.EligibleMarket
}

func (f *fakeImporter) Import(_ context.Context, ms []domain.EligibleMarket) (int, error) {
	f.got = append(f.got, ms...)
	return len(ms), nil
}

type ingestCall struct {
	venue string
	n     int
	err   bool
}

type fakeIngestRecorder struct {
	calls []ingestCall
}

func (f *fakeIngestRecorder) ObserveIngest(venue string, n int, err error) {
	f.calls = append(f.calls, ingestCall{venue, n, err != nil})
}

func TestIngester_RunOnce(t *testing.T) {
	pm := &fakeFetcher{venue: domain.VenuePolymarket, markets: []domain.EligibleMarket{
		{ID: "pm-1", Venue: domain.VenuePolymarket, Title: "BTC above 100k"},
	}}
	ks := &fakeFetcher{
		venue:   domain.VenueKalshi,
		markets: []domain.EligibleMarket{{ID: "K-1", Venue: domain.VenueKalshi, Title: "Bitcoin above 100k"}},
		err:     domain.ErrRateLimited,
	}
	imp := &fakeImporter{}
	rec := &fakeIngestRecorder{}
	in := NewIngester([]MarketFetcher{pm, ks}, imp, 0, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	counts, err := in.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 1, counts[domain.VenuePolymarket])
	assert.Equal(t, 1, counts[domain.VenueKalshi], "partial listing is still imported")
	assert.Len(t, imp.got, 2)
	assert.Equal(t, []ingestCall{{"polymarket", 1, false}, {"kalshi", 1, true}}, rec.calls)
}

func TestIngester_FailedVenueDoesNotStopOthers(t *testing.T) {
	bad := &fakeFetcher{venue: domain.VenuePolymarket, err: errors.New("HTTP 502")}
	good := &fakeFetcher{venue: domain.VenueKalshi, markets: []domain.EligibleMarket{{ID: "K-1"}}}
	imp := &fakeImporter{}
	in := NewIngester([]MarketFetcher{bad, good}, imp, 0, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	counts, err := in.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest polymarket")
	assert.Equal(t, 0, counts[domain.VenuePolymarket])
	assert.Equal(t, 1, counts[domain.VenueKalshi])
}

func TestIngester_StartSinglePass(t *testing.T) {
	src := &fakeFetcher{venue: domain.VenueKalshi, markets: []domain.EligibleMarket{{ID: "K-1"}}}
	imp := &fakeImporter{}
	in := NewIngester([]MarketFetcher{src}, imp, 0, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, in.Start(context.Background()))
	assert.Len(t, imp.got, 1)
}
