package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// MarketService fetches the markets a matching run works on.
type MarketService struct {
	markets domain.MarketSource
	logger  *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(markets domain.MarketSource, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// ListEligible returns the venue's eligible markets with blank titles and
// repeated ids removed. The source's ordering is preserved.
func (s *MarketService) ListEligible(ctx context.Context, venue domain.Venue, opts domain.EligibleOpts) ([]domain.EligibleMarket, error) {
	ms, err := s.markets.ListEligible(ctx, venue, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list eligible %s: %w", venue, err)
	}

	seen := make(map[string]bool, len(ms))
	out := make([]domain.EligibleMarket, 0, len(ms))
	skipped := 0
	for _, m := range ms {
		if strings.TrimSpace(m.Title) == "" || m.ID == "" || seen[m.ID] {
			skipped++
			continue
		}
		seen[m.ID] = true
		if m.Venue == "" {
			m.Venue = venue
		}
		out = append(out, m)
	}

	if skipped > 0 {
		s.logger.DebugContext(ctx, "market_service: skipped unusable markets",
			slog.String("venue", string(venue)),
			slog.Int("skipped", skipped),
		)
	}
	return out, nil
}

// Import writes market listings through the store, skipping entries without
// an id, title or known venue. It returns the number written.
func (s *MarketService) Import(ctx context.Context, ms []domain.EligibleMarket) (int, error) {
	w, ok := s.markets.(domain.MarketWriter)
	if !ok {
		return 0, fmt.Errorf("market_service: store cannot write markets: %w", domain.ErrInvalidInput)
	}
	keep := make([]domain.EligibleMarket, 0, len(ms))
	for _, m := range ms {
		if m.ID == "" || strings.TrimSpace(m.Title) == "" || (m.Venue != domain.VenuePolymarket && m.Venue != domain.VenueKalshi) {
			continue
		}
		keep = append(keep, m)
	}
	if err := w.UpsertBatch(ctx, keep); err != nil {
		return 0, fmt.Errorf("market_service: import: %w", err)
	}
	s.logger.InfoContext(ctx, "market_service: imported markets",
		slog.Int("written", len(keep)),
		slog.Int("skipped", len(ms)-len(keep)),
	)
	return len(keep), nil
}
