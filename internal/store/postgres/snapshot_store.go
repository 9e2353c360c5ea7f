package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsight/oddsight/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore: an append-only log of
// live snapshots. The detector never reads it; it exists to feed the
// training-data archiver.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Append stores one observed snapshot. A few scalar columns are kept
// queryable next to the full JSONB payload.
func (s *SnapshotStore) Append(ctx context.Context, snap domain.FixtureSnapshot) error {
	const query = `
		INSERT INTO fixture_snapshots (
			fixture_id, status, elapsed, home_goals, away_goals, payload, retrieved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		snap.FixtureID, string(snap.Status), snap.Elapsed,
		snap.Score.Home, snap.Score.Away,
		jsonField(snap), snap.RetrievedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append snapshot for fixture %d: %w", snap.FixtureID, err)
	}
	return nil
}

// ListBefore returns all snapshots retrieved before the cutoff, oldest
// first.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time) ([]domain.FixtureSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM fixture_snapshots WHERE retrieved_at < $1 ORDER BY retrieved_at`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var snaps []domain.FixtureSnapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot payload: %w", err)
		}
		var snap domain.FixtureSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("postgres: decode snapshot payload: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots rows: %w", err)
	}
	return snaps, nil
}

// DeleteBefore removes snapshots retrieved before the cutoff and
// reports how many rows went away. The archiver calls it after a
// successful export.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM fixture_snapshots WHERE retrieved_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
