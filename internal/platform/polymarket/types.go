package polymarket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APIMarket is the subset of a Gamma API market the linker reads.
type APIMarket struct {
	ID           string     `json:"id"`
	Question     string     `json:"question"`
	ConditionID  string     `json:"conditionId"`
	Slug         string     `json:"slug"`
	Category     string     `json:"category"`
	Active       flexBool   `json:"active"`
	Closed       bool       `json:"closed"`
	EndDate      string     `json:"endDate"`
	EndDateISO   string     `json:"endDateIso"`
	UpdatedAt    string     `json:"updatedAt"`
	GroupItem    string     `json:"groupItemTitle"`
	Events       []APIEvent `json:"events"`
	NegRisk      bool       `json:"negRisk"`
	Description  string     `json:"description"`
	ResolvedBy   string     `json:"resolvedBy"`
	UMAEndDate   string     `json:"umaEndDate"`
	SeriesTicker string     `json:"seriesSlug"`
}

// APIEvent is the parent event a Gamma market belongs to.
type APIEvent struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Open reports whether the market is still trading.
func (m *APIMarket) Open() bool {
	return bool(m.Active) && !m.Closed
}

// closeTime prefers the full timestamp and falls back to the date-only field
// at end of day UTC.
func (m *APIMarket) closeTime() *time.Time {
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		t = t.UTC()
		return &t
	}
	if d, err := time.Parse(time.DateOnly, m.EndDateISO); err == nil {
		t := d.Add(24*time.Hour - time.Second).UTC()
		return &t
	}
	return nil
}

// ToEligible converts the API market into the matcher's listing shape.
func (m *APIMarket) ToEligible() domain.EligibleMarket {
	em := domain.EligibleMarket{
		ID:        m.ID,
		Venue:     domain.VenuePolymarket,
		Title:     strings.TrimSpace(m.Question),
		Category:  strings.ToLower(m.Category),
		CloseTime: m.closeTime(),
		Metadata:  map[string]string{},
	}
	if m.Slug != "" {
		em.Metadata["slug"] = m.Slug
	}
	if m.ConditionID != "" {
		em.Metadata["condition_id"] = m.ConditionID
	}
	if m.GroupItem != "" {
		em.Metadata["group_item"] = m.GroupItem
	}
	if len(m.Events) > 0 && m.Events[0].Title != "" {
		em.Metadata["event"] = m.Events[0].Title
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		em.UpdatedAt = t.UTC()
	}
	return em
}
