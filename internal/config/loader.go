package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ODDSIGHT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ODDSIGHT_* environment variables
// and overwrites the corresponding Config fields when a variable is set
// (i.e. not empty). This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Provider ──
	setStr(&cfg.Provider.BaseURL, "ODDSIGHT_PROVIDER_BASE_URL")
	setStr(&cfg.Provider.APIKey, "ODDSIGHT_PROVIDER_API_KEY")
	setStr(&cfg.Provider.APIKeyFile, "ODDSIGHT_PROVIDER_API_KEY_FILE")
	setStr(&cfg.Provider.KeyPassword, "ODDSIGHT_PROVIDER_KEY_PASSWORD")
	setInt(&cfg.Provider.RequestsPerMinute, "ODDSIGHT_PROVIDER_REQUESTS_PER_MINUTE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ODDSIGHT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "ODDSIGHT_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ODDSIGHT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ODDSIGHT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ODDSIGHT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ODDSIGHT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ODDSIGHT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ODDSIGHT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "ODDSIGHT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "ODDSIGHT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ODDSIGHT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ODDSIGHT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ODDSIGHT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ODDSIGHT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ODDSIGHT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ODDSIGHT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ODDSIGHT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ODDSIGHT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ODDSIGHT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ODDSIGHT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ODDSIGHT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ODDSIGHT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ODDSIGHT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ODDSIGHT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ODDSIGHT_S3_FORCE_PATH_STYLE")

	// ── Telegram ──
	setStr(&cfg.Telegram.Token, "ODDSIGHT_TELEGRAM_TOKEN")
	setStr(&cfg.Telegram.TokenFile, "ODDSIGHT_TELEGRAM_TOKEN_FILE")
	setStr(&cfg.Telegram.KeyPassword, "ODDSIGHT_TELEGRAM_KEY_PASSWORD")

	// ── Monitor ──
	setDuration(&cfg.Monitor.ScanInterval, "ODDSIGHT_MONITOR_SCAN_INTERVAL")
	setDuration(&cfg.Monitor.Cooldown, "ODDSIGHT_MONITOR_COOLDOWN")
	setInt(&cfg.Monitor.MaxParallel, "ODDSIGHT_MONITOR_MAX_PARALLEL")
	setDuration(&cfg.Monitor.LookAhead, "ODDSIGHT_MONITOR_LOOKAHEAD")
	setFloat64(&cfg.Monitor.MinExpectedValue, "ODDSIGHT_MONITOR_MIN_EXPECTED_VALUE")
	setFloat64(&cfg.Monitor.RelevanceWeight, "ODDSIGHT_MONITOR_RELEVANCE_WEIGHT")
	setFloat64(&cfg.Monitor.PotentialWeight, "ODDSIGHT_MONITOR_POTENTIAL_WEIGHT")

	// ── Models ──
	setStr(&cfg.Models.Dir, "ODDSIGHT_MODELS_DIR")
	setFloat64(&cfg.Models.MLWeight, "ODDSIGHT_MODELS_ML_WEIGHT")
	setFloat64(&cfg.Models.RulesWeight, "ODDSIGHT_MODELS_RULES_WEIGHT")

	// ── Catalog ──
	setStr(&cfg.Catalog.PopularityPath, "ODDSIGHT_CATALOG_POPULARITY_PATH")
	setStr(&cfg.Catalog.PriorsPath, "ODDSIGHT_CATALOG_PRIORS_PATH")

	// ── Archive ──
	setStr(&cfg.Archive.Cron, "ODDSIGHT_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "ODDSIGHT_ARCHIVE_RETENTION_DAYS")

	// ── Settle ──
	setDuration(&cfg.Settle.Interval, "ODDSIGHT_SETTLE_INTERVAL")
	setDuration(&cfg.Settle.MinAge, "ODDSIGHT_SETTLE_MIN_AGE")

	// ── Top-level ──
	setStr(&cfg.Mode, "ODDSIGHT_MODE")
	setStr(&cfg.LogLevel, "ODDSIGHT_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
