package domain

import (
	"context"
	"time"
)

// SnapshotCache is short-lived storage for fixture snapshots, shielding
// the data provider from repeated per-tier detector reads.
type SnapshotCache interface {
	Set(ctx context.Context, snap FixtureSnapshot) error
	Get(ctx context.Context, fixtureID int64) (FixtureSnapshot, error)
	Invalidate(ctx context.Context, fixtureID int64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
