// Package memory provides in-memory implementations of the domain stores,
// used for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// LinkStore is an in-memory implementation of domain.LinkStore.
type LinkStore struct {
	mu    sync.RWMutex
	links map[string]*domain.Link   // keyed by id
	byKey map[domain.LinkKey]string // natural key -> id
	now   func() time.Time
}

// NewLinkStore creates an empty link store.
func NewLinkStore() *LinkStore {
	return NewLinkStoreWithClock(time.Now)
}

// NewLinkStoreWithClock creates an empty link store stamping rows with now.
func NewLinkStoreWithClock(now func() time.Time) *LinkStore {
	return &LinkStore{
		links: make(map[string]*domain.Link),
		byKey: make(map[domain.LinkKey]string),
		now:   now,
	}
}

func validateInput(in domain.SuggestionInput) error {
	if in.LeftVenue == "" || in.LeftMarketID == "" || in.RightVenue == "" || in.RightMarketID == "" {
		return fmt.Errorf("memory: link key incomplete: %w", domain.ErrInvalidInput)
	}
	if in.Score < 0 || in.Score > 1 {
		return fmt.Errorf("memory: score %.4f out of range: %w", in.Score, domain.ErrInvalidInput)
	}
	return nil
}

// Upsert inserts or re-scores a suggestion. Confirmed links are returned
// unchanged; rejected links are reopened only when opts allow it.
func (s *LinkStore) Upsert(_ context.Context, in domain.SuggestionInput, opts domain.UpsertOpts) (domain.UpsertResult, error) {
	if err := validateInput(in); err != nil {
		return domain.UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(in, opts), nil
}

func (s *LinkStore) upsertLocked(in domain.SuggestionInput, opts domain.UpsertOpts) domain.UpsertResult {
	now := s.now().UTC()
	if id, ok := s.byKey[in.Key()]; ok {
		l := s.links[id]
		if l.Status == domain.LinkConfirmed || (l.Status == domain.LinkRejected && !opts.ReopenRejected) {
			return domain.UpsertResult{Link: copyLink(l), Unchanged: true}
		}
		l.Score = in.Score
		l.Reason = in.Reason
		l.AlgoVersion = in.AlgoVersion
		l.Topic = in.Topic
		l.Meta = copyMeta(in.Meta)
		l.Status = domain.LinkSuggested
		l.UpdatedAt = now
		return domain.UpsertResult{Link: copyLink(l)}
	}

	l := &domain.Link{
		ID:            uuid.NewString(),
		LeftVenue:     in.LeftVenue,
		LeftMarketID:  in.LeftMarketID,
		RightVenue:    in.RightVenue,
		RightMarketID: in.RightMarketID,
		Score:         in.Score,
		Reason:        in.Reason,
		Status:        domain.LinkSuggested,
		AlgoVersion:   in.AlgoVersion,
		Topic:         in.Topic,
		Meta:          copyMeta(in.Meta),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.links[l.ID] = l
	s.byKey[in.Key()] = l.ID
	return domain.UpsertResult{Link: copyLink(l), Created: true}
}

// UpsertBatch applies every input under one lock. Invalid inputs are
// reported per item.
func (s *LinkStore) UpsertBatch(_ context.Context, ins []domain.SuggestionInput, opts domain.UpsertOpts) ([]domain.UpsertResult, []error, error) {
	results := make([]domain.UpsertResult, len(ins))
	errs := make([]error, len(ins))

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, in := range ins {
		if err := validateInput(in); err != nil {
			errs[i] = err
			continue
		}
		results[i] = s.upsertLocked(in, opts)
	}
	return results, errs, nil
}

// GetByID returns a link by id.
func (s *LinkStore) GetByID(_ context.Context, id string) (domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[id]
	if !ok {
		return domain.Link{}, domain.ErrNotFound
	}
	return copyLink(l), nil
}

// SetStatus moves a link to confirmed or rejected.
func (s *LinkStore) SetStatus(_ context.Context, id string, status domain.LinkStatus) (domain.Link, error) {
	if status != domain.LinkConfirmed && status != domain.LinkRejected {
		return domain.Link{}, fmt.Errorf("memory: set status %q: %w", status, domain.ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok {
		return domain.Link{}, domain.ErrNotFound
	}
	if l.Status != status {
		l.Status = status
		l.UpdatedAt = s.now().UTC()
	}
	return copyLink(l), nil
}

// HasConfirmedLink reports whether the market has a confirmed link on
// either side.
func (s *LinkStore) HasConfirmedLink(ctx context.Context, venue domain.Venue, marketID string) (bool, error) {
	ids, err := s.ConfirmedMarketIDs(ctx, venue, []string{marketID})
	if err != nil {
		return false, err
	}
	return ids[marketID], nil
}

// ConfirmedMarketIDs returns the subset of marketIDs with a confirmed link.
func (s *LinkStore) ConfirmedMarketIDs(_ context.Context, venue domain.Venue, marketIDs []string) (map[string]bool, error) {
	want := make(map[string]bool, len(marketIDs))
	for _, id := range marketIDs {
		want[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool)
	for _, l := range s.links {
		if l.Status != domain.LinkConfirmed {
			continue
		}
		if l.LeftVenue == venue && want[l.LeftMarketID] {
			out[l.LeftMarketID] = true
		}
		if l.RightVenue == venue && want[l.RightMarketID] {
			out[l.RightMarketID] = true
		}
	}
	return out, nil
}

// List returns links matching filter, most recently updated first.
func (s *LinkStore) List(_ context.Context, f domain.LinkFilter) ([]domain.Link, error) {
	s.mu.RLock()
	var out []domain.Link
	for _, l := range s.links {
		if matches(l, f) {
			out = append(out, copyLink(l))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(l *domain.Link, f domain.LinkFilter) bool {
	switch {
	case f.Status != "" && l.Status != f.Status:
		return false
	case f.Topic != "" && l.Topic != f.Topic:
		return false
	case f.LeftVenue != "" && l.LeftVenue != f.LeftVenue:
		return false
	case f.RightVenue != "" && l.RightVenue != f.RightVenue:
		return false
	case f.MinScore != nil && l.Score < *f.MinScore:
		return false
	case f.MaxScore != nil && l.Score >= *f.MaxScore:
		return false
	case f.UpdatedBefore != nil && !l.UpdatedAt.Before(*f.UpdatedBefore):
		return false
	}
	return true
}

// Stats counts links by status and by topic.
func (s *LinkStore) Stats(_ context.Context) (domain.LinkStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := domain.LinkStats{
		ByStatus: make(map[domain.LinkStatus]int64),
		ByTopic:  make(map[string]map[domain.LinkStatus]int64),
	}
	for _, l := range s.links {
		st.Total++
		st.ByStatus[l.Status]++
		if st.ByTopic[l.Topic] == nil {
			st.ByTopic[l.Topic] = make(map[domain.LinkStatus]int64)
		}
		st.ByTopic[l.Topic][l.Status]++
	}
	return st, nil
}

func copyLink(l *domain.Link) domain.Link {
	c := *l
	c.Meta = copyMeta(l.Meta)
	return c
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
