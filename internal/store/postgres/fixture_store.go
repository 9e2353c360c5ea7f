package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsight/oddsight/internal/domain"
)

// FixtureStore implements domain.FixtureStore. Each fixture row keeps
// the latest observed snapshot; statistics, events and odds live in
// JSONB columns so the schema does not chase the provider's shape.
type FixtureStore struct {
	pool *pgxpool.Pool
}

// NewFixtureStore creates a FixtureStore backed by the given pool.
func NewFixtureStore(pool *pgxpool.Pool) *FixtureStore {
	return &FixtureStore{pool: pool}
}

// Upsert inserts or refreshes the fixture's latest state. The monitored
// flag is deliberately left alone so refreshes cannot unmark a fixture.
func (s *FixtureStore) Upsert(ctx context.Context, snap domain.FixtureSnapshot) error {
	const query = `
		INSERT INTO fixtures (
			fixture_id, league_id, league_name, league_country,
			home_id, home_name, away_id, away_name,
			kickoff_at, status, elapsed, home_goals, away_goals,
			home_stats, away_stats, events, odds,
			retrieved_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, NOW()
		)
		ON CONFLICT (fixture_id) DO UPDATE SET
			kickoff_at   = EXCLUDED.kickoff_at,
			status       = EXCLUDED.status,
			elapsed      = EXCLUDED.elapsed,
			home_goals   = EXCLUDED.home_goals,
			away_goals   = EXCLUDED.away_goals,
			home_stats   = EXCLUDED.home_stats,
			away_stats   = EXCLUDED.away_stats,
			events       = EXCLUDED.events,
			odds         = EXCLUDED.odds,
			retrieved_at = EXCLUDED.retrieved_at,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query,
		snap.FixtureID, snap.League.ID, snap.League.Name, snap.League.Country,
		snap.Home.ID, snap.Home.Name, snap.Away.ID, snap.Away.Name,
		snap.KickoffAt, string(snap.Status), snap.Elapsed, snap.Score.Home, snap.Score.Away,
		jsonField(snap.HomeStats), jsonField(snap.AwayStats), jsonField(snap.Events), jsonField(snap.Odds),
		snap.RetrievedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert fixture %d: %w", snap.FixtureID, err)
	}
	return nil
}

const fixtureCols = `fixture_id, league_id, league_name, league_country,
	home_id, home_name, away_id, away_name,
	kickoff_at, status, elapsed, home_goals, away_goals,
	home_stats, away_stats, events, odds, retrieved_at`

// GetByID returns the latest stored state of a fixture.
func (s *FixtureStore) GetByID(ctx context.Context, fixtureID int64) (domain.FixtureSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fixtureCols+` FROM fixtures WHERE fixture_id = $1`, fixtureID)
	snap, err := scanFixture(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FixtureSnapshot{}, domain.ErrNotFound
		}
		return domain.FixtureSnapshot{}, fmt.Errorf("postgres: get fixture %d: %w", fixtureID, err)
	}
	return snap, nil
}

// ListMonitored returns every fixture currently flagged for monitoring,
// ordered by kickoff.
func (s *FixtureStore) ListMonitored(ctx context.Context) ([]domain.FixtureSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fixtureCols+` FROM fixtures WHERE monitored ORDER BY kickoff_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list monitored fixtures: %w", err)
	}
	defer rows.Close()

	var snaps []domain.FixtureSnapshot
	for rows.Next() {
		snap, err := scanFixture(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan monitored fixture: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list monitored fixtures rows: %w", err)
	}
	return snaps, nil
}

// SetMonitored flips the monitoring flag for a fixture.
func (s *FixtureStore) SetMonitored(ctx context.Context, fixtureID int64, monitored bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fixtures SET monitored = $2, updated_at = NOW() WHERE fixture_id = $1`,
		fixtureID, monitored)
	if err != nil {
		return fmt.Errorf("postgres: set monitored %d: %w", fixtureID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanFixture reads one fixture row, decoding the JSONB columns.
func scanFixture(row pgx.Row) (domain.FixtureSnapshot, error) {
	var snap domain.FixtureSnapshot
	var status string
	var homeStats, awayStats, events, odds []byte

	err := row.Scan(
		&snap.FixtureID, &snap.League.ID, &snap.League.Name, &snap.League.Country,
		&snap.Home.ID, &snap.Home.Name, &snap.Away.ID, &snap.Away.Name,
		&snap.KickoffAt, &status, &snap.Elapsed, &snap.Score.Home, &snap.Score.Away,
		&homeStats, &awayStats, &events, &odds, &snap.RetrievedAt,
	)
	if err != nil {
		return domain.FixtureSnapshot{}, err
	}
	snap.Status = domain.FixtureStatus(status)

	if len(homeStats) > 0 {
		if err := json.Unmarshal(homeStats, &snap.HomeStats); err != nil {
			return domain.FixtureSnapshot{}, fmt.Errorf("decode home stats: %w", err)
		}
	}
	if len(awayStats) > 0 {
		if err := json.Unmarshal(awayStats, &snap.AwayStats); err != nil {
			return domain.FixtureSnapshot{}, fmt.Errorf("decode away stats: %w", err)
		}
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &snap.Events); err != nil {
			return domain.FixtureSnapshot{}, fmt.Errorf("decode events: %w", err)
		}
	}
	if len(odds) > 0 {
		if err := json.Unmarshal(odds, &snap.Odds); err != nil {
			return domain.FixtureSnapshot{}, fmt.Errorf("decode odds: %w", err)
		}
	}
	return snap, nil
}

// jsonField marshals v for a JSONB column.
func jsonField(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
