package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Snapshots go stale within minutes during a live match, so the TTL is short.
const snapshotTTL = 2 * time.Minute

// SnapshotCache implements domain.SnapshotCache using Redis string keys
// with JSON-serialized snapshots.
//
// Key schema:
//
//	snapshot:{fixtureID} - JSON-encoded FixtureSnapshot
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(fixtureID int64) string { return fmt.Sprintf("snapshot:%d", fixtureID) }

// Set stores a snapshot with a short TTL so every tier pass within the
// same detection window reads the same match state.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.FixtureSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %d: %w", snap.FixtureID, err)
	}

	if err := sc.rdb.Set(ctx, snapshotKey(snap.FixtureID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %d: %w", snap.FixtureID, err)
	}
	return nil
}

// Get retrieves a snapshot by fixture ID.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (sc *SnapshotCache) Get(ctx context.Context, fixtureID int64) (domain.FixtureSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(fixtureID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.FixtureSnapshot{}, domain.ErrNotFound
		}
		return domain.FixtureSnapshot{}, fmt.Errorf("redis: get snapshot %d: %w", fixtureID, err)
	}

	var snap domain.FixtureSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.FixtureSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %d: %w", fixtureID, err)
	}
	return snap, nil
}

// Invalidate removes a snapshot, forcing the next read through to the provider.
func (sc *SnapshotCache) Invalidate(ctx context.Context, fixtureID int64) error {
	if err := sc.rdb.Del(ctx, snapshotKey(fixtureID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %d: %w", fixtureID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
