// Package service coordinates the data provider with the cache and
// persistence layers behind the read interfaces the pipeline consumes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
)

// refreshAfter bounds how old a cached snapshot may be before Snapshot
// goes back to the provider. It sits just under the hottest re-check
// cadence, so the first tier that reads a fixture in a sweep pays for
// the fetch and the remaining tiers are served from cache.
const refreshAfter = 25 * time.Second

// FixtureService is the pipeline's single source of fixture state. It
// reads through the snapshot cache to the provider and writes fresh
// state back to the store as a side effect, so detection, settlement
// and training all see the same data.
type FixtureService struct {
	provider  domain.FixtureProvider
	fixtures  domain.FixtureStore
	snapshots domain.SnapshotStore
	cache     domain.SnapshotCache
	logger    *slog.Logger

	now func() time.Time
}

// NewFixtureService creates a FixtureService with all required
// dependencies.
func NewFixtureService(
	provider domain.FixtureProvider,
	fixtures domain.FixtureStore,
	snapshots domain.SnapshotStore,
	cache domain.SnapshotCache,
	logger *slog.Logger,
) *FixtureService {
	return &FixtureService{
		provider:  provider,
		fixtures:  fixtures,
		snapshots: snapshots,
		cache:     cache,
		logger:    logger.With(slog.String("component", "fixture_service")),
		now:       time.Now,
	}
}

// Snapshot returns the current full state of a fixture. A cached copy
// younger than refreshAfter is returned as is; otherwise the provider
// is queried and the result written through to the cache and store.
// When the provider fails, any stale cached or stored copy is served
// instead, so one feed hiccup does not blind a detection sweep.
func (s *FixtureService) Snapshot(ctx context.Context, fixtureID int64) (domain.FixtureSnapshot, error) {
	cached, cacheErr := s.cache.Get(ctx, fixtureID)
	if cacheErr == nil && s.now().Sub(cached.RetrievedAt) < refreshAfter {
		return cached, nil
	}
	if cacheErr != nil && !errors.Is(cacheErr, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "snapshot cache read failed",
			slog.Int64("fixture_id", fixtureID),
			slog.String("error", cacheErr.Error()),
		)
	}

	snap, err := s.provider.FixtureByID(ctx, fixtureID)
	if err != nil {
		if cacheErr == nil {
			s.logger.WarnContext(ctx, "provider fetch failed, serving stale cache",
				slog.Int64("fixture_id", fixtureID),
				slog.Time("retrieved_at", cached.RetrievedAt),
				slog.String("error", err.Error()),
			)
			return cached, nil
		}
		stored, storeErr := s.fixtures.GetByID(ctx, fixtureID)
		if storeErr == nil {
			s.logger.WarnContext(ctx, "provider fetch failed, serving stored state",
				slog.Int64("fixture_id", fixtureID),
				slog.Time("retrieved_at", stored.RetrievedAt),
				slog.String("error", err.Error()),
			)
			return stored, nil
		}
		return domain.FixtureSnapshot{}, fmt.Errorf("fixture_service: fetch fixture %d: %w", fixtureID, err)
	}

	s.persist(ctx, snap)
	return snap, nil
}

// persist writes a fresh snapshot to the cache, the fixture store and,
// during play, the training history. The caller already holds the
// snapshot, so failures are logged and not returned.
func (s *FixtureService) persist(ctx context.Context, snap domain.FixtureSnapshot) {
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache write failed",
			slog.Int64("fixture_id", snap.FixtureID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.fixtures.Upsert(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "fixture upsert failed",
			slog.Int64("fixture_id", snap.FixtureID),
			slog.String("error", err.Error()),
		)
	}
	if !snap.Live() {
		return
	}
	if err := s.snapshots.Append(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "snapshot history append failed",
			slog.Int64("fixture_id", snap.FixtureID),
			slog.String("error", err.Error()),
		)
	}
}

// LiveFixtures lists fixtures currently in play. When the provider is
// down it falls back to the stored watchlist, filtered to fixtures
// whose last observed status was live.
func (s *FixtureService) LiveFixtures(ctx context.Context) ([]domain.FixtureSnapshot, error) {
	snaps, err := s.provider.LiveFixtures(ctx)
	if err == nil {
		return snaps, nil
	}
	s.logger.WarnContext(ctx, "live listing failed, falling back to stored watchlist",
		slog.String("error", err.Error()),
	)

	stored, storeErr := s.fixtures.ListMonitored(ctx)
	if storeErr != nil {
		s.logger.WarnContext(ctx, "watchlist fallback failed",
			slog.String("error", storeErr.Error()),
		)
		return nil, fmt.Errorf("fixture_service: list live fixtures: %w", err)
	}
	live := make([]domain.FixtureSnapshot, 0, len(stored))
	for _, snap := range stored {
		if snap.Live() {
			live = append(live, snap)
		}
	}
	return live, nil
}

// UpcomingFixtures lists fixtures kicking off within window. Upcoming
// rows are shallow (no statistics, events or odds) and are not
// persisted here; upserting them would blank the rich columns of
// fixtures already stored.
func (s *FixtureService) UpcomingFixtures(ctx context.Context, window time.Duration) ([]domain.FixtureSnapshot, error) {
	snaps, err := s.provider.UpcomingFixtures(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("fixture_service: list upcoming fixtures: %w", err)
	}
	return snaps, nil
}

// MarkMonitored flags a fixture as part of the live watchlist, the set
// LiveFixtures falls back to when the provider is unreachable.
func (s *FixtureService) MarkMonitored(ctx context.Context, fixtureID int64, monitored bool) error {
	if err := s.fixtures.SetMonitored(ctx, fixtureID, monitored); err != nil {
		return fmt.Errorf("fixture_service: mark fixture %d monitored: %w", fixtureID, err)
	}
	return nil
}
