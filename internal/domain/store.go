package domain

import (
	"context"
	"time"
)

// FixtureStore persists the latest observed state of each fixture.
type FixtureStore interface {
	Upsert(ctx context.Context, snap FixtureSnapshot) error
	GetByID(ctx context.Context, fixtureID int64) (FixtureSnapshot, error)
	ListMonitored(ctx context.Context) ([]FixtureSnapshot, error)
	SetMonitored(ctx context.Context, fixtureID int64, monitored bool) error
}

// SnapshotStore persists an append-only history of live snapshots,
// the raw material for model training.
type SnapshotStore interface {
	Append(ctx context.Context, snap FixtureSnapshot) error
	ListBefore(ctx context.Context, before time.Time) ([]FixtureSnapshot, error)
}

// AlertStore persists sent alerts and their settled outcomes.
type AlertStore interface {
	RecordSent(ctx context.Context, alert Alert) error
	CountSentSince(ctx context.Context, since time.Time) (int64, error)
	ListUnsettled(ctx context.Context, sentBefore time.Time) ([]Alert, error)
	Settle(ctx context.Context, alertID string, outcome AlertOutcome) error
	SuccessRate(ctx context.Context, since time.Time) (float64, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]Alert, error)
}

// TeamStatsStore serves historical team data: strength ratings and
// head-to-head aggregates, fed by recorded final results.
type TeamStatsStore interface {
	TeamStrength(ctx context.Context, teamID int64) (float64, error)
	HeadToHead(ctx context.Context, homeID, awayID int64) (HeadToHead, error)
	RecordResult(ctx context.Context, result MatchResult) error
}

// SubscriberStore lists alert recipients per tier.
type SubscriberStore interface {
	ListByTier(ctx context.Context, tier Tier) ([]Subscriber, error)
}
