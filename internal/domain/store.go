package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketSource lists markets eligible for matching on one venue.
type MarketSource interface {
	ListEligible(ctx context.Context, venue Venue, opts EligibleOpts) ([]EligibleMarket, error)
}

// MarketWriter loads market listings. Matching never writes markets; this is
// the ingestion side.
type MarketWriter interface {
	UpsertBatch(ctx context.Context, ms []EligibleMarket) error
}

// LinkStore persists cross-venue link suggestions.
type LinkStore interface {
	Upsert(ctx context.Context, in SuggestionInput, opts UpsertOpts) (UpsertResult, error)
	// UpsertBatch writes one left market's suggestions as a unit. Per-item
	// failures are returned in errs (indexed like ins) and do not abort the
	// remaining items.
	UpsertBatch(ctx context.Context, ins []SuggestionInput, opts UpsertOpts) (results []UpsertResult, errs []error, err error)
	GetByID(ctx context.Context, id string) (Link, error)
	SetStatus(ctx context.Context, id string, status LinkStatus) (Link, error)
	HasConfirmedLink(ctx context.Context, venue Venue, marketID string) (bool, error)
	ConfirmedMarketIDs(ctx context.Context, venue Venue, marketIDs []string) (map[string]bool, error)
	List(ctx context.Context, filter LinkFilter) ([]Link, error)
	Stats(ctx context.Context) (LinkStats, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
