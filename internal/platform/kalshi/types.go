package kalshi

import (
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// KalshiMarket is the subset of a Kalshi REST market the linker reads.
type KalshiMarket struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	Title          string  `json:"title"`
	Subtitle       string  `json:"subtitle"`
	Status         string  `json:"status"` // "open", "closed", "settled"
	Category       string  `json:"category"`
	CloseTime      string  `json:"close_time"`
	ExpirationTime string  `json:"expiration_time"`
	StrikeType     string  `json:"strike_type"`
	FloorStrike    float64 `json:"floor_strike"`
	CapStrike      float64 `json:"cap_strike"`
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// ToEligible converts the API market into the matcher's listing shape. The
// close time wins over the expiration time when both are present.
func (m *KalshiMarket) ToEligible() domain.EligibleMarket {
	closeAt := parseTime(m.CloseTime)
	if closeAt == nil {
		closeAt = parseTime(m.ExpirationTime)
	}
	title := strings.TrimSpace(m.Title)
	em := domain.EligibleMarket{
		ID:        m.Ticker,
		Venue:     domain.VenueKalshi,
		Title:     title,
		Category:  strings.ToLower(m.Category),
		CloseTime: closeAt,
		Metadata:  map[string]string{},
	}
	if m.EventTicker != "" {
		em.Metadata["event_ticker"] = m.EventTicker
	}
	if m.Subtitle != "" {
		em.Metadata["subtitle"] = m.Subtitle
	}
	if m.StrikeType != "" {
		em.Metadata["strike_type"] = m.StrikeType
		if m.FloorStrike != 0 {
			em.Metadata["floor_strike"] = strconv.FormatFloat(m.FloorStrike, 'f', -1, 64)
		}
		if m.CapStrike != 0 {
			em.Metadata["cap_strike"] = strconv.FormatFloat(m.CapStrike, 'f', -1, 64)
		}
	}
	return em
}
