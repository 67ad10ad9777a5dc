package domain

import "time"

// Venue identifies a prediction-market trading platform.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenueKalshi     Venue = "kalshi"
)

// EligibleMarket is a read-only market listing handed to the matcher. It is
// owned by the ingestion side and never mutated during a matching run.
type EligibleMarket struct {
	ID        string
	Venue     Venue
	Title     string
	Category  string
	CloseTime *time.Time
	Metadata  map[string]string
	UpdatedAt time.Time
}

// EligibleOpts filters the eligible-market listing for one venue.
type EligibleOpts struct {
	LookbackHours int
	Limit         int
	TitleKeywords []string
	Categories    []string
	OrderBy       string // "close_time" or "updated_at"
}
