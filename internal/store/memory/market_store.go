package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// MarketStore is an in-memory domain.MarketSource and domain.MarketWriter.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[domain.Venue]map[string]domain.EligibleMarket
	now     func() time.Time

	// Err, when set, is returned by every ListEligible call for the venue.
	Err map[domain.Venue]error
}

// NewMarketStore creates an empty market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		markets: make(map[domain.Venue]map[string]domain.EligibleMarket),
		now:     time.Now,
		Err:     make(map[domain.Venue]error),
	}
}

// Put adds or replaces markets.
func (s *MarketStore) Put(ms ...domain.EligibleMarket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		if s.markets[m.Venue] == nil {
			s.markets[m.Venue] = make(map[string]domain.EligibleMarket)
		}
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = s.now().UTC()
		}
		s.markets[m.Venue][m.ID] = m
	}
}

// UpsertBatch implements domain.MarketWriter.
func (s *MarketStore) UpsertBatch(_ context.Context, ms []domain.EligibleMarket) error {
	s.Put(ms...)
	return nil
}

// ListEligible filters by lookback, keywords and categories, then orders and
// limits the result.
func (s *MarketStore) ListEligible(_ context.Context, venue domain.Venue, opts domain.EligibleOpts) ([]domain.EligibleMarket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.Err[venue]; err != nil {
		return nil, err
	}

	var cutoff time.Time
	if opts.LookbackHours > 0 {
		cutoff = s.now().Add(-time.Duration(opts.LookbackHours) * time.Hour)
	}

	var out []domain.EligibleMarket
	for _, m := range s.markets[venue] {
		if !cutoff.IsZero() && m.UpdatedAt.Before(cutoff) {
			continue
		}
		if !matchesKeywords(m.Title, opts.TitleKeywords) || !matchesCategory(m.Category, opts.Categories) {
			continue
		}
		out = append(out, m)
	}

	sortEligible(out, opts.OrderBy)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func matchesKeywords(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func matchesCategory(category string, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// sortEligible orders by close time ascending (nulls last) or by
// updated_at descending, ties broken by id.
func sortEligible(ms []domain.EligibleMarket, orderBy string) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if orderBy == "updated_at" {
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
			return a.ID < b.ID
		}
		switch {
		case a.CloseTime == nil && b.CloseTime == nil:
		case a.CloseTime == nil:
			return false
		case b.CloseTime == nil:
			return true
		case !a.CloseTime.Equal(*b.CloseTime):
			return a.CloseTime.Before(*b.CloseTime)
		}
		return a.ID < b.ID
	})
}
