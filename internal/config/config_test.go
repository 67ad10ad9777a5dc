package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/domain"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"crypto", "macro", "politics"}, cfg.TopicNames())
}

func TestParse_TopicOverridesKeepKindDefaults(t *testing.T) {
	cfg, err := Parse(`
mode = "match"

[matching.topics.macro]
min_score = 0.7
keywords = ["cpi", "fed"]

[matching.topics.macro.dedup]
max_suggestions_per_left = 3

[matching.topics.macro.policy]
reject_min_age = "48h"

[matching.topics.elections]
kind = "general"
tables = "politics"
interval = "1h"

[matching.topics.elections.entities]
"the donald" = "TRUMP:person"
`)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	macro := cfg.Matching.Topics["macro"]
	assert.Equal(t, 0.7, macro.MinScore)
	assert.Equal(t, []string{"cpi", "fed"}, macro.Keywords)
	assert.Equal(t, 3, macro.Dedup.MaxSuggestionsPerLeft)
	assert.Equal(t, 5, macro.Dedup.TopK, "untouched dedup fields keep defaults")
	assert.Equal(t, 48*time.Hour, macro.Policy.RejectMinAge.Duration)
	assert.Equal(t, 0.9, macro.Policy.ConfirmMinScore)
	assert.Equal(t, "macro", macro.Tables)

	el := cfg.Matching.Topics["elections"]
	assert.Equal(t, "general", el.Kind)
	assert.Equal(t, time.Hour, el.Interval.Duration)
	assert.Equal(t, candidate.DefaultCap(candidate.KindGeneral), el.CandidateCap)
	assert.Equal(t, "polymarket", el.LeftVenue)

	// Built-in topics not mentioned in the file survive.
	assert.Contains(t, cfg.Matching.Topics, "crypto")
}

func TestParse_KindChangeResetsToNewDefaults(t *testing.T) {
	cfg, err := Parse(`
[matching.topics.crypto]
kind = "intraday"
`)
	require.NoError(t, err)
	ct := cfg.Matching.Topics["crypto"]
	assert.Equal(t, "intraday", ct.Kind)
	assert.Equal(t, 0.7, ct.MinScore)
	assert.Equal(t, 5*time.Minute, ct.Interval.Duration)
}

func TestTopicConfig_RunConfig(t *testing.T) {
	tc := DefaultTopic(candidate.KindMacro)
	tc.Entities = map[string]string{"powell": "POWELL:person"}
	tc.Keywords = []string{"cpi"}

	run, err := tc.RunConfig("macro", 6, true)
	require.NoError(t, err)
	require.NoError(t, run.Validate())

	assert.Equal(t, "macro", run.Topic)
	assert.Equal(t, candidate.KindMacro, run.Kind)
	assert.Equal(t, domain.VenuePolymarket, run.LeftVenue)
	assert.Equal(t, domain.VenueKalshi, run.RightVenue)
	assert.Equal(t, []string{"cpi"}, run.Eligible.TitleKeywords)
	assert.Equal(t, 6, run.Workers)
	assert.True(t, run.DryRun)

	e, ok := run.Tables.Lookup("powell")
	require.True(t, ok)
	assert.Equal(t, "POWELL", e.Tag)
	assert.EqualValues(t, "person", e.Class)

	_, err = TopicConfig{Kind: "bogus"}.RunConfig("x", 1, false)
	assert.Error(t, err)
}

func TestPipelineTopics_SkipsDisabled(t *testing.T) {
	cfg := Defaults()
	politics := cfg.Matching.Topics["politics"]
	politics.Disabled = true
	cfg.Matching.Topics["politics"] = politics

	topics, err := cfg.PipelineTopics()
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "crypto", topics[0].Name)
	assert.Equal(t, "macro", topics[1].Name)
	assert.Equal(t, 72*time.Hour, topics[1].Policy.RejectMinAge)
	assert.Equal(t, 30*time.Minute, topics[1].Interval)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	cfg.Ingest.Enabled = true
	cfg.Ingest.PageSize = 0
	cfg.Ingest.KalshiKeyID = "key"
	bad := DefaultTopic(candidate.KindGeneral)
	bad.Kind = "weird"
	bad.RightVenue = "polymarket"
	bad.MinScore = 1.5
	bad.Policy.ConfirmMinScore = 0.5
	bad.Policy.RejectBelowScore = 0.6
	cfg.Matching.Topics["bad"] = bad

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		"redis: addr must not be empty",
		`unknown kind "weird"`,
		"must differ",
		"min_score must be in [0,1]",
		"reject_below_score must be below confirm_min_score",
		"ingest: page_size and max_pages must be >= 1",
		"kalshi_key_id requires kalshi_private_key_path",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o600))

	t.Setenv("MARKETLINK_POSTGRES_DSN", "postgres://u:p@db/marketlink")
	t.Setenv("MARKETLINK_MODE", "server")
	t.Setenv("MARKETLINK_DRY_RUN", "true")
	t.Setenv("MARKETLINK_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MARKETLINK_MATCHING_LOCK_TTL", "2m")
	t.Setenv("MARKETLINK_INGEST_ENABLED", "true")
	t.Setenv("MARKETLINK_INGEST_INTERVAL", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "server", cfg.Mode)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "postgres://u:p@db/marketlink", cfg.Postgres.DSN)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Matching.LockTTL.Duration)
	assert.True(t, cfg.Ingest.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Ingest.Interval.Duration)
	assert.Equal(t, 500, cfg.Ingest.PageSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "k"
	cfg.Notify.DiscordWebhookURL = "https://discord/hook"
	cfg.Ingest.KalshiKeyID = "kid"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)
	assert.Equal(t, "***", red.Ingest.KalshiKeyID)
	assert.Empty(t, red.Redis.Password)

	red.Server.CORSOrigins[0] = "mutated"
	delete(red.Matching.Topics, "macro")
	assert.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigins[0])
	assert.Contains(t, cfg.Matching.Topics, "macro")
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
