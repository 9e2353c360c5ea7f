package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/oddsight/oddsight/internal/blob/s3"
	"github.com/oddsight/oddsight/internal/cache/redis"
	"github.com/oddsight/oddsight/internal/config"
	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/notify"
	"github.com/oddsight/oddsight/internal/provider/sportsdata"
	"github.com/oddsight/oddsight/internal/secrets"
	"github.com/oddsight/oddsight/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the
// application modes need to operate. It is constructed by Wire and torn
// down by the returned cleanup function. Fields stay nil when the
// selected mode does not wire that subsystem.
type Dependencies struct {
	// Stores
	Fixtures    domain.FixtureStore
	Snapshots   domain.SnapshotStore
	Alerts      domain.AlertStore
	TeamStats   domain.TeamStatsStore
	Subscribers domain.SubscriberStore

	// Caches
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	Locks         domain.LockManager

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Data feed
	Provider domain.FixtureProvider

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that read or persist match
// state.
func needsPostgres(mode string) bool {
	switch mode {
	case "monitor", "scan":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that use the snapshot cache, the
// provider rate limiter or the cycle lock.
func needsRedis(mode string) bool {
	switch mode {
	case "monitor", "scan":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that touch the training archive.
func needsS3(mode string) bool {
	switch mode {
	case "monitor", "replay":
		return true
	default:
		return false
	}
}

// needsProvider returns true for modes that call the live data feed.
// Replay works entirely from archived snapshots.
func needsProvider(mode string) bool {
	switch mode {
	case "monitor", "scan":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the
// given configuration and returns them together with a cleanup function
// that should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// The archiver pairs S3 with the concrete stores, so these outlive
	// the postgres block.
	var (
		alertStore    *postgres.AlertStore
		snapshotStore *postgres.SnapshotStore
	)

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		alertStore = postgres.NewAlertStore(pool)
		snapshotStore = postgres.NewSnapshotStore(pool)
		deps.Fixtures = postgres.NewFixtureStore(pool)
		deps.Snapshots = snapshotStore
		deps.Alerts = alertStore
		deps.TeamStats = postgres.NewTeamStatsStore(pool)
		deps.Subscribers = postgres.NewSubscriberStore(pool)
	}

	// --- Redis (only for modes that cache or rate limit) ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
	}

	// --- S3 blob storage (only for modes that archive or replay) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		// Archiver: only when we also have Postgres to export from.
		if alertStore != nil && snapshotStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, alertStore, snapshotStore)
		}
	}

	// --- Data feed ---
	if needsProvider(cfg.Mode) {
		apiKey, err := secrets.Load(secrets.Source{
			Value:    cfg.Provider.APIKey,
			File:     cfg.Provider.APIKeyFile,
			Password: cfg.Provider.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: provider key: %w", err)
		}
		deps.Provider = sportsdata.NewClient(sportsdata.ClientConfig{
			BaseURL:           cfg.Provider.BaseURL,
			APIKey:            apiKey,
			RequestsPerMinute: cfg.Provider.RequestsPerMinute,
		}, deps.RateLimiter, logger)
	}

	// --- Notifications ---
	// Telegram only delivers in monitor mode; scan and replay print to
	// the console regardless of the configured token.
	var senders []notify.Sender
	if cfg.Mode == "monitor" && (cfg.Telegram.Token != "" || cfg.Telegram.TokenFile != "") {
		token, err := secrets.Load(secrets.Source{
			Value:    cfg.Telegram.Token,
			File:     cfg.Telegram.TokenFile,
			Password: cfg.Telegram.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: telegram token: %w", err)
		}
		tg, err := notify.NewTelegramSender(token, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: telegram: %w", err)
		}
		closers = append(closers, tg.Close)
		senders = append(senders, tg)
	}
	if len(senders) == 0 {
		senders = append(senders, notify.NewConsoleSender(logger))
	}
	deps.Notifier = notify.New(logger, senders...)

	return deps, cleanup, nil
}
