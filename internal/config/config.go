// Package config defines the top-level configuration for marketlink and
// provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/dedup"
	"github.com/alanyoungcy/marketlink/internal/scoring"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETLINK_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Ingest   IngestConfig   `toml:"ingest"`
	Matching MatchingConfig `toml:"matching"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	// DryRun forces every run to skip persistence.
	DryRun bool `toml:"dry_run"`
}

// PostgresConfig holds PostgreSQL connection parameters. When disabled the
// in-memory stores are used, which only makes sense for dry runs and demos.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Without Redis the topic
// locks and link events are process-local.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters for the run report
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is the number of mutating requests per minute per client.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// IngestConfig controls the venue listing refresh.
type IngestConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	PageSize int      `toml:"page_size"`
	MaxPages int      `toml:"max_pages"`

	PolymarketGammaURL   string `toml:"polymarket_gamma_url"`
	KalshiBaseURL        string `toml:"kalshi_base_url"`
	KalshiKeyID          string `toml:"kalshi_key_id"`
	KalshiPrivateKeyPath string `toml:"kalshi_private_key_path"`
}

// MatchingConfig holds engine-wide settings and the topic profiles.
type MatchingConfig struct {
	Workers        int      `toml:"workers"`
	ReopenRejected bool     `toml:"reopen_rejected"`
	LockTTL        duration `toml:"lock_ttl"`
	// Topics is decoded separately so each profile starts from the defaults
	// of its kind; see Load.
	Topics map[string]TopicConfig `toml:"-"`
}

// TopicConfig is one matching profile. Zero numeric fields fall back to the
// defaults of the topic's kind.
type TopicConfig struct {
	Disabled    bool     `toml:"disabled"`
	Kind        string   `toml:"kind"`
	AlgoVersion string   `toml:"algo_version"`
	LeftVenue   string   `toml:"left_venue"`
	RightVenue  string   `toml:"right_venue"`
	Interval    duration `toml:"interval"`

	// Tables names a built-in entity table set; Entities adds surface forms
	// as "form" = "TAG" or "form" = "TAG:class".
	Tables   string            `toml:"tables"`
	Entities map[string]string `toml:"entities"`

	LookbackHours int      `toml:"lookback_hours"`
	Limit         int      `toml:"limit"`
	Keywords      []string `toml:"keywords"`
	Categories    []string `toml:"categories"`
	OrderBy       string   `toml:"order_by"`

	BucketMinutes int     `toml:"bucket_minutes"`
	CandidateCap  int     `toml:"candidate_cap"`
	MinScore      float64 `toml:"min_score"`

	Scoring scoring.Config `toml:"scoring"`
	Dedup   dedup.Config   `toml:"dedup"`
	Policy  PolicyConfig   `toml:"policy"`
}

// PolicyConfig holds the auto-policy thresholds for a topic. A zero
// threshold disables its pass.
type PolicyConfig struct {
	Apply              bool     `toml:"apply"`
	ConfirmMinScore    float64  `toml:"confirm_min_score"`
	RequireStrongTier  bool     `toml:"require_strong_tier"`
	RequireExactPeriod bool     `toml:"require_exact_period"`
	RequireGateNone    bool     `toml:"require_gate_none"`
	RejectBelowScore   float64  `toml:"reject_below_score"`
	RejectMinAge       duration `toml:"reject_min_age"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "marketlink",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "marketlink:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketlink-reports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   60,
		},
		Notify: NotifyConfig{
			Events: []string{"run_failed", "policy_failed"},
		},
		Ingest: IngestConfig{
			Interval:           duration{10 * time.Minute},
			PageSize:           500,
			MaxPages:           20,
			PolymarketGammaURL: "https://gamma-api.polymarket.com",
			KalshiBaseURL:      "https://api.elections.kalshi.com/trade-api/v2",
		},
		Matching: MatchingConfig{
			Workers:        4,
			ReopenRejected: true,
			LockTTL:        duration{15 * time.Minute},
			Topics: map[string]TopicConfig{
				"macro":    DefaultTopic(candidate.KindMacro),
				"crypto":   DefaultTopic(candidate.KindCrypto),
				"politics": DefaultTopic(candidate.KindGeneral),
			},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// DefaultTopic returns the stock profile for an index kind.
func DefaultTopic(kind candidate.Kind) TopicConfig {
	t := TopicConfig{
		Kind:          string(kind),
		LeftVenue:     "polymarket",
		RightVenue:    "kalshi",
		Interval:      duration{30 * time.Minute},
		Tables:        "all",
		LookbackHours: 24 * 30,
		Limit:         5000,
		OrderBy:       "close_time",
		BucketMinutes: 15,
		CandidateCap:  candidate.DefaultCap(kind),
		MinScore:      0.6,
		Scoring:       scoring.DefaultConfig(),
		Dedup:         dedup.DefaultConfig(),
	}
	switch kind {
	case candidate.KindMacro:
		t.Tables = "macro"
		t.Policy = PolicyConfig{
			ConfirmMinScore:    0.9,
			RequireStrongTier:  true,
			RequireExactPeriod: true,
			RequireGateNone:    true,
			RejectBelowScore:   0.65,
			RejectMinAge:       duration{72 * time.Hour},
		}
	case candidate.KindCrypto:
		t.Tables = "crypto"
		t.LookbackHours = 24 * 7
		t.Dedup.Bracket = true
		t.Policy = PolicyConfig{
			ConfirmMinScore: 0.92,
			RequireGateNone: true,
		}
	case candidate.KindIntraday:
		t.Tables = "crypto"
		t.Interval = duration{5 * time.Minute}
		t.LookbackHours = 24
		t.MinScore = 0.7
	default:
		t.Tables = "politics"
	}
	return t
}

// fillZero copies defaults into fields the profile left at zero.
func (t *TopicConfig) fillZero(def TopicConfig) {
	if t.LeftVenue == "" {
		t.LeftVenue = def.LeftVenue
	}
	if t.RightVenue == "" {
		t.RightVenue = def.RightVenue
	}
	if t.Tables == "" {
		t.Tables = def.Tables
	}
	if t.OrderBy == "" {
		t.OrderBy = def.OrderBy
	}
	if t.LookbackHours == 0 {
		t.LookbackHours = def.LookbackHours
	}
	if t.Limit == 0 {
		t.Limit = def.Limit
	}
	if t.BucketMinutes == 0 {
		t.BucketMinutes = def.BucketMinutes
	}
	if t.CandidateCap == 0 {
		t.CandidateCap = def.CandidateCap
	}
	if t.MinScore == 0 {
		t.MinScore = def.MinScore
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"match":  true,
	"policy": true,
	"server": true,
	"full":   true,
	"ingest": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validVenues = map[string]bool{
	"polymarket": true,
	"kalshi":     true,
}

// TopicNames returns the configured topic names, sorted.
func (c *Config) TopicNames() []string {
	names := make([]string, 0, len(c.Matching.Topics))
	for n := range c.Matching.Topics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: match, policy, server, full, ingest)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled || c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Ingest
	if c.Ingest.Enabled || c.Mode == "ingest" {
		if c.Ingest.Interval.Duration < 0 {
			errs = append(errs, "ingest: interval must be >= 0")
		}
		if c.Ingest.PageSize < 1 || c.Ingest.MaxPages < 1 {
			errs = append(errs, "ingest: page_size and max_pages must be >= 1")
		}
		if c.Ingest.KalshiKeyID != "" && c.Ingest.KalshiPrivateKeyPath == "" {
			errs = append(errs, "ingest: kalshi_key_id requires kalshi_private_key_path")
		}
	}

	// Matching
	if c.Matching.Workers < 0 {
		errs = append(errs, "matching: workers must be >= 0")
	}
	if c.Matching.LockTTL.Duration <= 0 {
		errs = append(errs, "matching: lock_ttl must be > 0")
	}
	if len(c.Matching.Topics) == 0 {
		errs = append(errs, "matching: at least one topic must be configured")
	}
	for _, name := range c.TopicNames() {
		errs = append(errs, c.Matching.Topics[name].validate(name)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (t TopicConfig) validate(name string) []string {
	var errs []string
	p := "matching.topics." + name + ": "
	if _, err := candidate.ParseKind(t.Kind); err != nil {
		errs = append(errs, p+fmt.Sprintf("unknown kind %q (valid: general, macro, crypto, intraday)", t.Kind))
	}
	if !validVenues[t.LeftVenue] || !validVenues[t.RightVenue] {
		errs = append(errs, p+fmt.Sprintf("venues must be polymarket or kalshi, got %q/%q", t.LeftVenue, t.RightVenue))
	} else if t.LeftVenue == t.RightVenue {
		errs = append(errs, p+"left_venue and right_venue must differ")
	}
	if t.MinScore < 0 || t.MinScore > 1 {
		errs = append(errs, p+fmt.Sprintf("min_score must be in [0,1], got %.2f", t.MinScore))
	}
	if t.Interval.Duration < 0 {
		errs = append(errs, p+"interval must be >= 0")
	}
	if t.OrderBy != "close_time" && t.OrderBy != "updated_at" {
		errs = append(errs, p+fmt.Sprintf("order_by must be close_time or updated_at, got %q", t.OrderBy))
	}
	if t.LookbackHours < 0 || t.Limit < 0 || t.CandidateCap < 0 || t.BucketMinutes < 0 {
		errs = append(errs, p+"lookback_hours, limit, candidate_cap and bucket_minutes must be >= 0")
	}
	if t.Dedup.WinnerGap < 0 || t.Dedup.WinnerGap > 1 {
		errs = append(errs, p+"dedup.winner_gap must be in [0,1]")
	}
	if t.Policy.ConfirmMinScore < 0 || t.Policy.ConfirmMinScore > 1 {
		errs = append(errs, p+"policy.confirm_min_score must be in [0,1]")
	}
	if t.Policy.RejectBelowScore < 0 || t.Policy.RejectBelowScore > 1 {
		errs = append(errs, p+"policy.reject_below_score must be in [0,1]")
	}
	if t.Policy.ConfirmMinScore > 0 && t.Policy.RejectBelowScore >= t.Policy.ConfirmMinScore {
		errs = append(errs, p+"policy.reject_below_score must be below confirm_min_score")
	}
	for form, v := range t.Entities {
		if tag, _, _ := strings.Cut(v, ":"); strings.TrimSpace(form) == "" || strings.TrimSpace(tag) == "" {
			errs = append(errs, p+fmt.Sprintf("entity %q = %q needs a form and a tag", form, v))
		}
	}
	return errs
}
