package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// MarketFetcher lists a venue's open markets.
type MarketFetcher interface {
	Venue() domain.Venue
	ListOpenMarkets(ctx context.Context) ([]domain.EligibleMarket, error)
}

// MarketImporter writes fetched listings into the market store.
type MarketImporter interface {
	Import(ctx context.Context, ms []domain.EligibleMarket) (int, error)
}

// IngestRecorder observes ingest passes (metrics).
type IngestRecorder interface {
	ObserveIngest(venue string, imported int, err error)
}

// Ingester refreshes the market store from every venue on an interval.
type Ingester struct {
	sources  []MarketFetcher
	importer MarketImporter
	interval time.Duration
	recorder IngestRecorder
	logger   *slog.Logger
}

// NewIngester creates an Ingester. recorder may be nil.
func NewIngester(sources []MarketFetcher, importer MarketImporter, interval time.Duration, recorder IngestRecorder, logger *slog.Logger) *Ingester {
	return &Ingester{
		sources:  sources,
		importer: importer,
		interval: interval,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "ingester")),
	}
}

// RunOnce fetches and imports every venue. A failing venue does not stop the
// others; the returned error joins every venue failure. Partial listings are
// still imported.
func (in *Ingester) RunOnce(ctx context.Context) (map[domain.Venue]int, error) {
	counts := make(map[domain.Venue]int, len(in.sources))
	var errs []error
	for _, src := range in.sources {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		venue := src.Venue()
		n, err := in.ingest(ctx, src)
		counts[venue] = n
		if in.recorder != nil {
			in.recorder.ObserveIngest(string(venue), n, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("pipeline: ingest %s: %w", venue, err))
			continue
		}
		in.logger.InfoContext(ctx, "ingester: venue refreshed",
			slog.String("venue", string(venue)),
			slog.Int("imported", n),
		)
	}
	return counts, errors.Join(errs...)
}

func (in *Ingester) ingest(ctx context.Context, src MarketFetcher) (int, error) {
	ms, fetchErr := src.ListOpenMarkets(ctx)
	if len(ms) == 0 {
		return 0, fetchErr
	}
	n, err := in.importer.Import(ctx, ms)
	if err != nil {
		return n, err
	}
	return n, fetchErr
}

// Start runs RunOnce immediately and then every interval until ctx is
// cancelled. A non-positive interval makes Start a single pass.
func (in *Ingester) Start(ctx context.Context) error {
	in.pass(ctx)
	if in.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			in.pass(ctx)
		}
	}
}

func (in *Ingester) pass(ctx context.Context) {
	if _, err := in.RunOnce(ctx); err != nil && ctx.Err() == nil {
		in.logger.ErrorContext(ctx, "ingester: pass failed", slog.String("error", err.Error()))
	}
}
