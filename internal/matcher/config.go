package matcher

import (
	"fmt"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/dedup"
	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
	"github.com/alanyoungcy/marketlink/internal/scoring"
)

// RunConfig is everything one matching run needs. It is built once per run
// from a topic profile and never mutated afterwards.
type RunConfig struct {
	RunID       string
	Topic       string
	AlgoVersion string

	LeftVenue  domain.Venue
	RightVenue domain.Venue
	Eligible   domain.EligibleOpts

	Kind          candidate.Kind
	Tables        *fingerprint.Tables
	BucketMinutes int
	CandidateCap  int

	MinScore float64
	Scoring  scoring.Config
	Dedup    dedup.Config

	Workers int
	DryRun  bool
}

// Validate checks the fields a run cannot default.
func (c RunConfig) Validate() error {
	switch {
	case c.Topic == "":
		return fmt.Errorf("matcher: topic is required: %w", domain.ErrInvalidInput)
	case c.LeftVenue == "" || c.RightVenue == "":
		return fmt.Errorf("matcher: both venues are required: %w", domain.ErrInvalidInput)
	case c.LeftVenue == c.RightVenue:
		return fmt.Errorf("matcher: venues must differ (%s): %w", c.LeftVenue, domain.ErrInvalidInput)
	case c.MinScore < 0 || c.MinScore > 1:
		return fmt.Errorf("matcher: min score %.2f out of range: %w", c.MinScore, domain.ErrInvalidInput)
	}
	if _, err := candidate.ParseKind(string(c.Kind)); err != nil {
		return fmt.Errorf("matcher: %w: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

func (c RunConfig) withDefaults() RunConfig {
	if c.Tables == nil {
		c.Tables = fingerprint.DefaultTables("all")
	}
	if c.AlgoVersion == "" {
		c.AlgoVersion = fmt.Sprintf("%s-v1", c.Kind)
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}
