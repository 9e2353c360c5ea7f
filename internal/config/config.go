// Package config defines the top-level configuration for oddsight and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from
// a TOML file and then optionally overridden by ODDSIGHT_* environment
// variables.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Telegram TelegramConfig `toml:"telegram"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Tiers    TiersConfig    `toml:"tiers"`
	Models   ModelsConfig   `toml:"models"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Archive  ArchiveConfig  `toml:"archive"`
	Settle   SettleConfig   `toml:"settle"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ProviderConfig holds the football data feed endpoint and credentials.
type ProviderConfig struct {
	BaseURL string `toml:"base_url"`
	// APIKey is the plaintext feed key. Leave empty to load from
	// APIKeyFile instead.
	APIKey string `toml:"api_key"`
	// APIKeyFile is the path to an encrypted keyfile holding the key.
	APIKeyFile string `toml:"api_key_file"`
	// KeyPassword decrypts APIKeyFile.
	KeyPassword       string `toml:"key_password"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TelegramConfig holds the alert bot credentials. When both Token and
// TokenFile are empty, alerts go to the console sender only.
type TelegramConfig struct {
	Token       string `toml:"token"`
	TokenFile   string `toml:"token_file"`
	KeyPassword string `toml:"key_password"`
}

// MonitorConfig holds the live monitoring loop parameters.
type MonitorConfig struct {
	ScanInterval     duration `toml:"scan_interval"`
	Cooldown         duration `toml:"cooldown"`
	MaxParallel      int      `toml:"max_parallel"`
	LookAhead        duration `toml:"lookahead"`
	MinExpectedValue float64  `toml:"min_expected_value"`
	RelevanceWeight  float64  `toml:"relevance_weight"`
	PotentialWeight  float64  `toml:"potential_weight"`
}

// TierConfig holds one subscription tier's gates.
type TierConfig struct {
	Quota         int      `toml:"quota"`
	MinConfidence float64  `toml:"min_confidence"`
	Delay         duration `toml:"delay"`
}

// TiersConfig holds the per-tier quotas, confidence gates and alert
// delays.
type TiersConfig struct {
	Free      TierConfig `toml:"free"`
	Insider   TierConfig `toml:"insider"`
	Estratega TierConfig `toml:"estratega"`
}

// ModelsConfig holds the prediction model parameters.
type ModelsConfig struct {
	Dir         string  `toml:"dir"`
	MLWeight    float64 `toml:"ml_weight"`
	RulesWeight float64 `toml:"rules_weight"`
}

// CatalogConfig holds paths to the popularity and market prior files.
// Empty paths fall back to the embedded defaults.
type CatalogConfig struct {
	PopularityPath string `toml:"popularity_path"`
	PriorsPath     string `toml:"priors_path"`
}

// ArchiveConfig holds the cold storage export schedule.
type ArchiveConfig struct {
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// SettleConfig holds the alert settlement sweep parameters.
type SettleConfig struct {
	Interval duration `toml:"interval"`
	MinAge   duration `toml:"min_age"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
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
// A loaded file and ODDSIGHT_* environment variables override them.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:           "https://v3.football.api-sports.io",
			RequestsPerMinute: 30,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "oddsight",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "oddsight-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Monitor: MonitorConfig{
			ScanInterval:     duration{5 * time.Minute},
			Cooldown:         duration{15 * time.Minute},
			MaxParallel:      8,
			LookAhead:        duration{2 * time.Hour},
			MinExpectedValue: 0.10,
			RelevanceWeight:  0.6,
			PotentialWeight:  0.4,
		},
		Tiers: TiersConfig{
			Free:      TierConfig{Quota: 5, MinConfidence: 0.85, Delay: duration{60 * time.Second}},
			Insider:   TierConfig{Quota: 10, MinConfidence: 0.75, Delay: duration{30 * time.Second}},
			Estratega: TierConfig{Quota: 20, MinConfidence: 0.65, Delay: duration{0}},
		},
		Models: ModelsConfig{
			Dir:         "models",
			MLWeight:    0.7,
			RulesWeight: 0.3,
		},
		Archive: ArchiveConfig{
			Cron:          "0 4 * * *",
			RetentionDays: 90,
		},
		Settle: SettleConfig{
			Interval: duration{10 * time.Minute},
			MinAge:   duration{2 * time.Hour},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"scan":    true,
	"replay":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, scan, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Replay works entirely from archived snapshots, so it is the one
	// mode that runs without provider credentials.
	needsProvider := mode != "replay"
	if needsProvider {
		if c.Provider.BaseURL == "" {
			errs = append(errs, "provider: base_url must not be empty")
		}
		if c.Provider.APIKey == "" && c.Provider.APIKeyFile == "" {
			errs = append(errs, "provider: either api_key or api_key_file must be set for mode "+c.Mode)
		}
		if c.Provider.RequestsPerMinute < 1 {
			errs = append(errs, "provider: requests_per_minute must be >= 1")
		}
	}
	if c.Provider.APIKeyFile != "" && c.Provider.KeyPassword == "" {
		errs = append(errs, "provider: key_password is required when api_key_file is set")
	}

	if c.Telegram.TokenFile != "" && c.Telegram.KeyPassword == "" {
		errs = append(errs, "telegram: key_password is required when token_file is set")
	}

	// Postgres
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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Monitor
	if c.Monitor.MaxParallel < 1 {
		errs = append(errs, "monitor: max_parallel must be >= 1")
	}
	if c.Monitor.MinExpectedValue < 0 {
		errs = append(errs, "monitor: min_expected_value must be >= 0")
	}
	if c.Monitor.RelevanceWeight < 0 || c.Monitor.PotentialWeight < 0 {
		errs = append(errs, "monitor: relevance_weight and potential_weight must be >= 0")
	}
	if c.Monitor.RelevanceWeight+c.Monitor.PotentialWeight <= 0 {
		errs = append(errs, "monitor: relevance_weight and potential_weight must not both be zero")
	}

	// Tiers
	for _, tc := range []struct {
		name string
		tier TierConfig
	}{
		{"free", c.Tiers.Free},
		{"insider", c.Tiers.Insider},
		{"estratega", c.Tiers.Estratega},
	} {
		if tc.tier.Quota < 0 {
			errs = append(errs, fmt.Sprintf("tiers.%s: quota must be >= 0", tc.name))
		}
		if tc.tier.MinConfidence < 0 || tc.tier.MinConfidence > 1 {
			errs = append(errs, fmt.Sprintf("tiers.%s: min_confidence must be in [0,1]", tc.name))
		}
		if tc.tier.Delay.Duration < 0 {
			errs = append(errs, fmt.Sprintf("tiers.%s: delay must be >= 0", tc.name))
		}
	}

	// Models
	if c.Models.Dir == "" {
		errs = append(errs, "models: dir must not be empty")
	}
	if c.Models.MLWeight < 0 || c.Models.RulesWeight < 0 {
		errs = append(errs, "models: ml_weight and rules_weight must be >= 0")
	}
	if c.Models.MLWeight+c.Models.RulesWeight <= 0 {
		errs = append(errs, "models: ml_weight and rules_weight must not both be zero")
	}

	// Archive
	if c.Archive.Cron == "" {
		errs = append(errs, "archive: cron must not be empty")
	}
	if c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
