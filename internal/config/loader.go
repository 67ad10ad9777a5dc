package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/alanyoungcy/marketlink/internal/candidate"
)

// rawTopics captures the topic tables undecoded so each can be decoded over
// the defaults of its own kind.
type rawTopics struct {
	Matching struct {
		Topics map[string]toml.Primitive `toml:"topics"`
	} `toml:"matching"`
}

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETLINK_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// Topics named in the file are decoded over the built-in profile of the same
// name, or over the defaults of their kind. Built-in topics the file does not
// mention are kept.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Parse decodes TOML text over Defaults without consulting the environment.
func Parse(text string) (*Config, error) {
	cfg := Defaults()
	builtin := cfg.Matching.Topics

	if _, err := toml.Decode(text, &cfg); err != nil {
		return nil, err
	}

	var raw rawTopics
	md, err := toml.Decode(text, &raw)
	if err != nil {
		return nil, err
	}

	topics := make(map[string]TopicConfig, len(builtin)+len(raw.Matching.Topics))
	for name, t := range builtin {
		topics[name] = t
	}
	for name, prim := range raw.Matching.Topics {
		var head struct {
			Kind string `toml:"kind"`
		}
		if err := md.PrimitiveDecode(prim, &head); err != nil {
			return nil, fmt.Errorf("topic %s: %w", name, err)
		}

		base, ok := builtin[name]
		if !ok || (head.Kind != "" && head.Kind != base.Kind) {
			kind := candidate.Kind(head.Kind)
			if kind == "" {
				kind = candidate.KindGeneral
			}
			base = DefaultTopic(kind)
		}
		def := base
		if err := md.PrimitiveDecode(prim, &base); err != nil {
			return nil, fmt.Errorf("topic %s: %w", name, err)
		}
		base.fillZero(def)
		topics[name] = base
	}
	cfg.Matching.Topics = topics
	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETLINK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MARKETLINK_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MARKETLINK_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "MARKETLINK_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MARKETLINK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETLINK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETLINK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETLINK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETLINK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETLINK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETLINK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETLINK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETLINK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETLINK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETLINK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETLINK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETLINK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETLINK_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "MARKETLINK_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "MARKETLINK_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MARKETLINK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MARKETLINK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETLINK_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETLINK_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "MARKETLINK_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "MARKETLINK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETLINK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETLINK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETLINK_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETLINK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETLINK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETLINK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARKETLINK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MARKETLINK_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETLINK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETLINK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETLINK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETLINK_NOTIFY_EVENTS")

	// ── Ingest ──
	setBool(&cfg.Ingest.Enabled, "MARKETLINK_INGEST_ENABLED")
	setDuration(&cfg.Ingest.Interval, "MARKETLINK_INGEST_INTERVAL")
	setInt(&cfg.Ingest.PageSize, "MARKETLINK_INGEST_PAGE_SIZE")
	setInt(&cfg.Ingest.MaxPages, "MARKETLINK_INGEST_MAX_PAGES")
	setStr(&cfg.Ingest.PolymarketGammaURL, "MARKETLINK_INGEST_POLYMARKET_GAMMA_URL")
	setStr(&cfg.Ingest.KalshiBaseURL, "MARKETLINK_INGEST_KALSHI_BASE_URL")
	setStr(&cfg.Ingest.KalshiKeyID, "MARKETLINK_INGEST_KALSHI_KEY_ID")
	setStr(&cfg.Ingest.KalshiPrivateKeyPath, "MARKETLINK_INGEST_KALSHI_PRIVATE_KEY_PATH")

	// ── Matching ──
	setInt(&cfg.Matching.Workers, "MARKETLINK_MATCHING_WORKERS")
	setBool(&cfg.Matching.ReopenRejected, "MARKETLINK_MATCHING_REOPEN_REJECTED")
	setDuration(&cfg.Matching.LockTTL, "MARKETLINK_MATCHING_LOCK_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETLINK_MODE")
	setStr(&cfg.LogLevel, "MARKETLINK_LOG_LEVEL")
	setBool(&cfg.DryRun, "MARKETLINK_DRY_RUN")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
