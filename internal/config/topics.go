package config

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/domain"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
	"github.com/alanyoungcy/marketlink/internal/matcher"
	"github.com/alanyoungcy/marketlink/internal/pipeline"
	"github.com/alanyoungcy/marketlink/internal/policy"
)

// EntityTables builds the topic's fingerprint tables: the named built-in set
// plus the profile's additions.
func (t TopicConfig) EntityTables() *fingerprint.Tables {
	tables := fingerprint.DefaultTables(t.Tables)
	for form, v := range t.Entities {
		tag, class, _ := strings.Cut(v, ":")
		tables.Add(form, fingerprint.Entity{
			Tag:   strings.TrimSpace(tag),
			Class: fingerprint.EntityClass(strings.ToLower(strings.TrimSpace(class))),
		})
	}
	return tables
}

// RunConfig converts the profile into an explicit matcher.RunConfig. RunID is
// left for the scheduler to assign.
func (t TopicConfig) RunConfig(name string, workers int, dryRun bool) (matcher.RunConfig, error) {
	kind, err := candidate.ParseKind(t.Kind)
	if err != nil {
		return matcher.RunConfig{}, fmt.Errorf("config: topic %s: %w", name, err)
	}
	return matcher.RunConfig{
		Topic:       name,
		AlgoVersion: t.AlgoVersion,
		LeftVenue:   domain.Venue(t.LeftVenue),
		RightVenue:  domain.Venue(t.RightVenue),
		Eligible: domain.EligibleOpts{
			LookbackHours: t.LookbackHours,
			Limit:         t.Limit,
			TitleKeywords: t.Keywords,
			Categories:    t.Categories,
			OrderBy:       t.OrderBy,
		},
		Kind:          kind,
		Tables:        t.EntityTables(),
		BucketMinutes: t.BucketMinutes,
		CandidateCap:  t.CandidateCap,
		MinScore:      t.MinScore,
		Scoring:       t.Scoring,
		Dedup:         t.Dedup,
		Workers:       workers,
		DryRun:        dryRun,
	}, nil
}

// PolicyConfig converts the profile's thresholds.
func (p PolicyConfig) PolicyConfig() policy.Config {
	return policy.Config{
		ConfirmMinScore:    p.ConfirmMinScore,
		RequireStrongTier:  p.RequireStrongTier,
		RequireExactPeriod: p.RequireExactPeriod,
		RequireGateNone:    p.RequireGateNone,
		RejectBelowScore:   p.RejectBelowScore,
		RejectMinAge:       p.RejectMinAge.Duration,
	}
}

// PipelineTopics converts every enabled profile into a scheduler topic.
func (c *Config) PipelineTopics() ([]pipeline.Topic, error) {
	var out []pipeline.Topic
	for _, name := range c.TopicNames() {
		t := c.Matching.Topics[name]
		if t.Disabled {
			continue
		}
		run, err := t.RunConfig(name, c.Matching.Workers, c.DryRun)
		if err != nil {
			return nil, err
		}
		out = append(out, pipeline.Topic{
			Name:        name,
			Interval:    t.Interval.Duration,
			Run:         run,
			Policy:      t.Policy.PolicyConfig(),
			ApplyPolicy: t.Policy.Apply,
		})
	}
	return out, nil
}
