package domain

import (
	"context"
	"time"
)

// FixtureProvider is a read-only client for a live football data feed.
// LiveFixtures and UpcomingFixtures return shallow snapshots (identity,
// status, score); FixtureByID fills statistics, events and odds.
type FixtureProvider interface {
	LiveFixtures(ctx context.Context) ([]FixtureSnapshot, error)
	UpcomingFixtures(ctx context.Context, window time.Duration) ([]FixtureSnapshot, error)
	FixtureByID(ctx context.Context, fixtureID int64) (FixtureSnapshot, error)
}
