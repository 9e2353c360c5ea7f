package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsight/oddsight/internal/domain"
)

const (
	baseRating = 1500.0
	eloK       = 32.0
	h2hWindow  = 10 // most recent meetings considered
)

// TeamStatsStore implements domain.TeamStatsStore on the match_results
// and team_ratings tables. Ratings are plain Elo, updated once per
// recorded result and mapped onto the selector's 0..10 scale on read.
type TeamStatsStore struct {
	pool *pgxpool.Pool
}

// NewTeamStatsStore creates a TeamStatsStore backed by the given pool.
func NewTeamStatsStore(pool *pgxpool.Pool) *TeamStatsStore {
	return &TeamStatsStore{pool: pool}
}

// TeamStrength returns the team's rating on [0,10]. Teams with no
// recorded results return ErrNotFound; callers treat that as neutral.
func (s *TeamStatsStore) TeamStrength(ctx context.Context, teamID int64) (float64, error) {
	var rating float64
	err := s.pool.QueryRow(ctx,
		`SELECT rating FROM team_ratings WHERE team_id = $1`, teamID).Scan(&rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: team strength %d: %w", teamID, err)
	}
	return strengthScale(rating), nil
}

// HeadToHead aggregates the last meetings between two teams in either
// orientation. No meetings on record is not an error; it returns a
// zero-valued aggregate.
func (s *TeamStatsStore) HeadToHead(ctx context.Context, homeID, awayID int64) (domain.HeadToHead, error) {
	const query = `
		SELECT COUNT(*),
		       COALESCE(AVG(home_goals + away_goals), 0),
		       COALESCE(SUM(CASE WHEN home_goals > 0 AND away_goals > 0 THEN 1 ELSE 0 END), 0)
		FROM (
			SELECT home_goals, away_goals
			FROM match_results
			WHERE (home_id = $1 AND away_id = $2) OR (home_id = $2 AND away_id = $1)
			ORDER BY played_at DESC
			LIMIT $3
		) recent`

	var h2h domain.HeadToHead
	err := s.pool.QueryRow(ctx, query, homeID, awayID, h2hWindow).
		Scan(&h2h.Matches, &h2h.AvgGoals, &h2h.BTTSCount)
	if err != nil {
		return domain.HeadToHead{}, fmt.Errorf("postgres: head to head %d vs %d: %w", homeID, awayID, err)
	}
	return h2h, nil
}

// RecordResult stores a final result and moves both Elo ratings.
// Recording the same fixture twice is a no-op, so ratings never move
// twice for one match.
func (s *TeamStatsStore) RecordResult(ctx context.Context, res domain.MatchResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin record result: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO match_results (fixture_id, home_id, away_id, home_goals, away_goals, played_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fixture_id) DO NOTHING`,
		res.FixtureID, res.HomeID, res.AwayID, res.HomeGoals, res.AwayGoals, res.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert result %d: %w", res.FixtureID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	home, err := ratingForUpdate(ctx, tx, res.HomeID)
	if err != nil {
		return err
	}
	away, err := ratingForUpdate(ctx, tx, res.AwayID)
	if err != nil {
		return err
	}

	scoreHome := 0.5
	switch {
	case res.HomeGoals > res.AwayGoals:
		scoreHome = 1
	case res.HomeGoals < res.AwayGoals:
		scoreHome = 0
	}
	expectedHome := 1 / (1 + math.Pow(10, (away-home)/400))
	delta := eloK * (scoreHome - expectedHome)

	if err := upsertRating(ctx, tx, res.HomeID, home+delta); err != nil {
		return err
	}
	if err := upsertRating(ctx, tx, res.AwayID, away-delta); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit record result: %w", err)
	}
	return nil
}

func ratingForUpdate(ctx context.Context, tx pgx.Tx, teamID int64) (float64, error) {
	var rating float64
	err := tx.QueryRow(ctx,
		`SELECT rating FROM team_ratings WHERE team_id = $1 FOR UPDATE`, teamID).Scan(&rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return baseRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: load rating %d: %w", teamID, err)
	}
	return rating, nil
}

func upsertRating(ctx context.Context, tx pgx.Tx, teamID int64, rating float64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO team_ratings (team_id, rating, played, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (team_id) DO UPDATE SET
			rating     = EXCLUDED.rating,
			played     = team_ratings.played + 1,
			updated_at = NOW()`,
		teamID, rating,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert rating %d: %w", teamID, err)
	}
	return nil
}

// strengthScale maps an Elo rating onto 0..10: 1300 is 0, 1500 is 5,
// 1700 is 10.
func strengthScale(rating float64) float64 {
	s := (rating - 1300) / 40
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
