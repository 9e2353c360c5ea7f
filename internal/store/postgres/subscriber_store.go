package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsight/oddsight/internal/domain"
)

// SubscriberStore implements domain.SubscriberStore. Subscriber rows
// are managed out of band; the service only reads them.
type SubscriberStore struct {
	pool *pgxpool.Pool
}

// NewSubscriberStore creates a SubscriberStore backed by the given pool.
func NewSubscriberStore(pool *pgxpool.Pool) *SubscriberStore {
	return &SubscriberStore{pool: pool}
}

// ListByTier returns the active subscribers of one tier, oldest first.
func (s *SubscriberStore) ListByTier(ctx context.Context, tier domain.Tier) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, tier, active, created_at
		FROM subscribers
		WHERE tier = $1 AND active
		ORDER BY created_at`,
		tier.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list subscribers for %s: %w", tier, err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		var tierName string
		if err := rows.Scan(&sub.UserID, &tierName, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan subscriber: %w", err)
		}
		t, err := domain.ParseTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("postgres: subscriber %d: %w", sub.UserID, err)
		}
		sub.Tier = t
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list subscribers rows: %w", err)
	}
	return subs, nil
}
