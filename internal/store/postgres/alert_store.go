package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsight/oddsight/internal/domain"
)

// AlertStore implements domain.AlertStore.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates an AlertStore backed by the given pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// RecordSent persists an alert at the moment it is dispatched, with a
// pending outcome.
func (s *AlertStore) RecordSent(ctx context.Context, alert domain.Alert) error {
	const query = `
		INSERT INTO alerts (
			id, fixture_id, market, tier,
			probability, confidence, expected_value, price,
			minute, home_goals, away_goals, outcome, sent_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		alert.ID, alert.FixtureID, alert.Market.String(), alert.Tier.String(),
		alert.Probability, alert.Confidence, alert.ExpectedValue, alert.Price,
		alert.Minute, alert.Score.Home, alert.Score.Away,
		string(domain.AlertPending), alert.SentAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record alert %s: %w", alert.ID, err)
	}
	return nil
}

// CountSentSince returns how many alerts were sent at or after since.
func (s *AlertStore) CountSentSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE sent_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count sent alerts: %w", err)
	}
	return count, nil
}

const alertCols = `id, fixture_id, market, tier,
	probability, confidence, expected_value, price,
	minute, home_goals, away_goals, outcome, sent_at, settled_at`

// ListUnsettled returns pending alerts sent before the cutoff, oldest
// first. The cutoff keeps the settler away from alerts whose fixtures
// are still being played.
func (s *AlertStore) ListUnsettled(ctx context.Context, sentBefore time.Time) ([]domain.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE outcome = 'pending' AND sent_at < $1 ORDER BY sent_at`,
		sentBefore)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unsettled alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// Settle records the outcome of a pending alert. Settling an alert
// twice, or one that does not exist, returns ErrNotFound.
func (s *AlertStore) Settle(ctx context.Context, alertID string, outcome domain.AlertOutcome) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET outcome = $2, settled_at = NOW() WHERE id = $1 AND outcome = 'pending'`,
		alertID, string(outcome))
	if err != nil {
		return fmt.Errorf("postgres: settle alert %s: %w", alertID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SuccessRate returns won/(won+lost) over alerts settled at or after
// since. Voided alerts do not count either way; with nothing settled
// the rate is zero.
func (s *AlertStore) SuccessRate(ctx context.Context, since time.Time) (float64, error) {
	const query = `
		SELECT COUNT(*) FILTER (WHERE outcome = 'won'),
		       COUNT(*) FILTER (WHERE outcome IN ('won', 'lost'))
		FROM alerts WHERE settled_at >= $1`

	var won, settled int64
	if err := s.pool.QueryRow(ctx, query, since).Scan(&won, &settled); err != nil {
		return 0, fmt.Errorf("postgres: success rate: %w", err)
	}
	if settled == 0 {
		return 0, nil
	}
	return float64(won) / float64(settled), nil
}

// ListSettledBefore returns settled alerts whose settlement happened
// before the cutoff, oldest first. The archiver exports these.
func (s *AlertStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE outcome <> 'pending' AND settled_at < $1 ORDER BY settled_at`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// DeleteSettledBefore removes settled alerts older than the cutoff and
// reports how many rows went away.
func (s *AlertStore) DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM alerts WHERE outcome <> 'pending' AND settled_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectAlerts(rows pgx.Rows) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: alerts rows: %w", err)
	}
	return alerts, nil
}

func scanAlert(row pgx.Row) (domain.Alert, error) {
	var a domain.Alert
	var market, tier, outcome string

	err := row.Scan(
		&a.ID, &a.FixtureID, &market, &tier,
		&a.Probability, &a.Confidence, &a.ExpectedValue, &a.Price,
		&a.Minute, &a.Score.Home, &a.Score.Away, &outcome, &a.SentAt, &a.SettledAt,
	)
	if err != nil {
		return domain.Alert{}, err
	}

	m, err := domain.ParseMarket(market)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("alert %s: %w", a.ID, err)
	}
	a.Market = m

	t, err := domain.ParseTier(tier)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("alert %s: %w", a.ID, err)
	}
	a.Tier = t

	a.Outcome = domain.AlertOutcome(outcome)
	return a, nil
}
