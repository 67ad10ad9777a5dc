package domain

import "time"

// LinkStatus is the lifecycle state of a cross-venue link suggestion.
type LinkStatus string

const (
	LinkSuggested LinkStatus = "suggested"
	LinkConfirmed LinkStatus = "confirmed"
	LinkRejected  LinkStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s LinkStatus) Valid() bool {
	switch s {
	case LinkSuggested, LinkConfirmed, LinkRejected:
		return true
	}
	return false
}

// Link is a persisted candidate match between a market on one venue and a
// market on another. The venue/market quadruple is unique.
type Link struct {
	ID            string
	LeftVenue     Venue
	LeftMarketID  string
	RightVenue    Venue
	RightMarketID string
	Score         float64
	Reason        string
	Status        LinkStatus
	AlgoVersion   string
	Topic         string
	Meta          map[string]string // gate, tier, compat, intent
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LinkKey is the composite natural key of a Link.
type LinkKey struct {
	LeftVenue     Venue
	LeftMarketID  string
	RightVenue    Venue
	RightMarketID string
}

// Key returns the composite key of l.
func (l Link) Key() LinkKey {
	return LinkKey{
		LeftVenue:     l.LeftVenue,
		LeftMarketID:  l.LeftMarketID,
		RightVenue:    l.RightVenue,
		RightMarketID: l.RightMarketID,
	}
}

// SuggestionInput carries one scored pair to be upserted.
type SuggestionInput struct {
	LeftVenue     Venue
	LeftMarketID  string
	RightVenue    Venue
	RightMarketID string
	Score         float64
	Reason        string
	AlgoVersion   string
	Topic         string
	Meta          map[string]string
}

// Key returns the composite key the input will be stored under.
func (in SuggestionInput) Key() LinkKey {
	return LinkKey{
		LeftVenue:     in.LeftVenue,
		LeftMarketID:  in.LeftMarketID,
		RightVenue:    in.RightVenue,
		RightMarketID: in.RightMarketID,
	}
}

// UpsertResult reports the outcome of a single upsert. Unchanged is true when
// the existing link was left as-is (confirmed, or rejected with reopening
// disabled).
type UpsertResult struct {
	Link      Link
	Created   bool
	Unchanged bool
}

// UpsertOpts controls upsert policy.
type UpsertOpts struct {
	// ReopenRejected resets a rejected link back to suggested when the pair is
	// re-scored. Confirmed links are never touched.
	ReopenRejected bool
}

// LinkFilter narrows link listings.
type LinkFilter struct {
	Status        LinkStatus
	Topic         string
	LeftVenue     Venue
	RightVenue    Venue
	MinScore      *float64
	MaxScore      *float64
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}

// LinkStats aggregates link counts for reporting.
type LinkStats struct {
	Total    int64
	ByStatus map[LinkStatus]int64
	ByTopic  map[string]map[LinkStatus]int64
}

// LinkEvent is published whenever a link changes state.
type LinkEvent struct {
	Type   string    `json:"type"` // created, updated, confirmed, rejected
	LinkID string    `json:"link_id"`
	Topic  string    `json:"topic"`
	Score  float64   `json:"score"`
	Status string    `json:"status"`
	Left   string    `json:"left"`
	Right  string    `json:"right"`
	At     time.Time `json:"at"`
}
