// Package settle resolves sent alerts against final fixture state.
// Settled outcomes drive the published success rate and, exported by the
// archiver, become labels for model training.
package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
)

// giveUpAfter bounds how long an alert may stay pending. A fixture that
// never reaches a final status (provider dropped it, coverage gap) would
// otherwise leave its alerts in every sweep forever.
const giveUpAfter = 24 * time.Hour

// AlertSource provides the unsettled alerts and accepts their outcomes.
type AlertSource interface {
	ListUnsettled(ctx context.Context, sentBefore time.Time) ([]domain.Alert, error)
	Settle(ctx context.Context, alertID string, outcome domain.AlertOutcome) error
}

// FixtureSource serves the last observed state of a fixture.
type FixtureSource interface {
	GetByID(ctx context.Context, fixtureID int64) (domain.FixtureSnapshot, error)
}

// ResultRecorder feeds finished fixtures into the team history tables.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result domain.MatchResult) error
}

// Config controls the settlement sweep.
type Config struct {
	// Interval is the time between sweeps.
	Interval time.Duration

	// MinAge is how old an alert must be before settlement is attempted.
	// Time-windowed markets cannot resolve while the match is still
	// running, so there is no point looking at fresh alerts.
	MinAge time.Duration
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.MinAge <= 0 {
		c.MinAge = 2 * time.Hour
	}
}

// Settler periodically resolves pending alerts using the stored final
// state of their fixtures.
type Settler struct {
	alerts   AlertSource
	fixtures FixtureSource
	history  ResultRecorder
	cfg      Config
	logger   *slog.Logger

	now func() time.Time
}

// New creates a Settler. history may be nil; final results are then not
// recorded for ratings.
func New(alerts AlertSource, fixtures FixtureSource, history ResultRecorder, cfg Config, logger *slog.Logger) *Settler {
	cfg.setDefaults()
	return &Settler{
		alerts:   alerts,
		fixtures: fixtures,
		history:  history,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "settler")),
		now:      time.Now,
	}
}

// Run sweeps immediately and then on every interval tick until the
// context is cancelled.
func (s *Settler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "settler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("min_age", s.cfg.MinAge),
	)

	if err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "settlement sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "settler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "settlement sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single settlement sweep.
func (s *Settler) RunOnce(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.MinAge)

	pending, err := s.alerts.ListUnsettled(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("settle: list unsettled: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	// Alerts cluster per fixture, so fetch each fixture's state once.
	snaps := make(map[int64]*domain.FixtureSnapshot)
	recorded := make(map[int64]bool)

	var settled, skipped int
	for _, alert := range pending {
		snap, ok := snaps[alert.FixtureID]
		if !ok {
			snap = s.fetch(ctx, alert.FixtureID)
			snaps[alert.FixtureID] = snap
		}

		outcome, resolvable := s.outcomeFor(alert, snap)
		if !resolvable {
			skipped++
			continue
		}

		if err := s.alerts.Settle(ctx, alert.ID, outcome); err != nil {
			s.logger.WarnContext(ctx, "settle alert failed",
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		settled++

		if snap != nil && snap.Finished() && !recorded[alert.FixtureID] {
			recorded[alert.FixtureID] = true
			s.recordResult(ctx, snap)
		}
	}

	s.logger.InfoContext(ctx, "settlement sweep complete",
		slog.Int("pending", len(pending)),
		slog.Int("settled", settled),
		slog.Int("skipped", skipped),
	)
	return nil
}

// fetch loads a fixture's stored state, returning nil when it is missing
// or unreadable. A nil snapshot still settles once the alert ages out.
func (s *Settler) fetch(ctx context.Context, fixtureID int64) *domain.FixtureSnapshot {
	snap, err := s.fixtures.GetByID(ctx, fixtureID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "load fixture for settlement failed",
				slog.Int64("fixture_id", fixtureID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return &snap
}

// outcomeFor decides the outcome of an alert, or reports that it cannot
// be resolved yet.
func (s *Settler) outcomeFor(alert domain.Alert, snap *domain.FixtureSnapshot) (domain.AlertOutcome, bool) {
	expired := s.now().Sub(alert.SentAt) > giveUpAfter

	if snap == nil {
		if expired {
			return domain.AlertVoid, true
		}
		return "", false
	}

	switch snap.Status {
	case domain.StatusPostponed, domain.StatusCancelled, domain.StatusAbandoned:
		// The market never resolved; stakes would be returned.
		return domain.AlertVoid, true
	}

	if !snap.Finished() {
		if expired {
			return domain.AlertVoid, true
		}
		return "", false
	}

	return resolve(alert, *snap), true
}

func (s *Settler) recordResult(ctx context.Context, snap *domain.FixtureSnapshot) {
	if s.history == nil {
		return
	}

	result := domain.MatchResult{
		FixtureID: snap.FixtureID,
		HomeID:    snap.Home.ID,
		AwayID:    snap.Away.ID,
		HomeGoals: snap.Score.Home,
		AwayGoals: snap.Score.Away,
		PlayedAt:  snap.KickoffAt,
	}
	if err := s.history.RecordResult(ctx, result); err != nil {
		s.logger.WarnContext(ctx, "record final result failed",
			slog.Int64("fixture_id", snap.FixtureID),
			slog.String("error", err.Error()),
		)
	}
}

// resolve maps an alert and the final fixture state to an outcome.
func resolve(alert domain.Alert, snap domain.FixtureSnapshot) domain.AlertOutcome {
	switch alert.Market {
	case domain.MarketOver05, domain.MarketOver15, domain.MarketOver25:
		line, _ := alert.Market.GoalLine()
		if float64(snap.Score.Total()) > line {
			return domain.AlertWon
		}
		return domain.AlertLost

	case domain.MarketBTTS:
		if snap.Score.Home > 0 && snap.Score.Away > 0 {
			return domain.AlertWon
		}
		return domain.AlertLost

	case domain.MarketNextGoal:
		return resolveNextGoal(alert, snap)

	case domain.MarketCornerNext10:
		// Corner counts are only in the aggregate statistics; the final
		// state has no per-minute corner timeline to check the window
		// against.
		return domain.AlertVoid
	}

	return domain.AlertVoid
}

// resolveNextGoal checks which side scored the first goal after the alert.
// The alert's probability refers to the home side, so home scoring next
// wins and anything else loses.
func resolveNextGoal(alert domain.Alert, snap domain.FixtureSnapshot) domain.AlertOutcome {
	alertTotal := alert.Score.Total()
	if snap.Score.Total() <= alertTotal {
		return domain.AlertLost
	}

	goals := goalEvents(snap.Events)
	if len(goals) <= alertTotal {
		// The score moved but the timeline does not cover it.
		return domain.AlertVoid
	}

	next := goals[alertTotal]
	switch next.TeamID {
	case snap.Home.ID:
		return domain.AlertWon
	case snap.Away.ID:
		return domain.AlertLost
	}
	return domain.AlertVoid
}

// goalEvents returns the scoring events in match order. Missed penalties
// arrive typed as goal events and must not count.
func goalEvents(events []domain.MatchEvent) []domain.MatchEvent {
	goals := make([]domain.MatchEvent, 0, len(events))
	for _, ev := range events {
		if ev.Type != domain.EventGoal || ev.Detail == "Missed Penalty" {
			continue
		}
		goals = append(goals, ev)
	}
	sort.SliceStable(goals, func(i, j int) bool { return goals[i].Minute < goals[j].Minute })
	return goals
}
