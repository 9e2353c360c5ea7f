// Package selector ranks candidate fixtures for the limited monitoring
// slots each tier gets. Relevance (how much the audience cares) and
// potential (how likely the fixture is to produce alerts) blend into a
// single score; the tier quota truncates the ranking.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/oddsight/oddsight/internal/catalog"
	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/rules"
)

const (
	leagueWeight = 0.5
	teamWeight   = 0.4

	strongTeamShare = 0.7
	weakTeamShare   = 0.3

	liveBonus     = 1.5
	lateGameBonus = 1.0
	lateGameFrom  = 70

	maxSubScore = 10.0
)

// Config holds selection weights and per-tier quotas.
type Config struct {
	RelevanceWeight float64
	PotentialWeight float64
	LookAhead       time.Duration
	TierQuotas      map[domain.Tier]int
}

// PotentialEstimator is the learned fixture-potential path.
type PotentialEstimator interface {
	PredictPotential(ctx context.Context, snap domain.FixtureSnapshot) (float64, error)
}

// FixtureSource lists candidate fixtures.
type FixtureSource interface {
	LiveFixtures(ctx context.Context) ([]domain.FixtureSnapshot, error)
	UpcomingFixtures(ctx context.Context, window time.Duration) ([]domain.FixtureSnapshot, error)
}

// Selector scores and ranks fixtures.
type Selector struct {
	cfg       Config
	fixtures  FixtureSource
	estimator PotentialEstimator
	rules     *rules.Engine
	catalog   *catalog.Catalog
	teams     domain.TeamStatsStore
	logger    *slog.Logger
}

// New builds a selector. Weights that do not sum to 1 are renormalised
// with a warning; selection never hard-fails on configuration drift.
func New(cfg Config, fixtures FixtureSource, estimator PotentialEstimator, rulesEngine *rules.Engine, cat *catalog.Catalog, teams domain.TeamStatsStore, logger *slog.Logger) *Selector {
	logger = logger.With(slog.String("component", "selector"))

	sum := cfg.RelevanceWeight + cfg.PotentialWeight
	switch {
	case sum <= 0:
		logger.Warn("selection weights unusable, using defaults",
			slog.Float64("relevance", cfg.RelevanceWeight),
			slog.Float64("potential", cfg.PotentialWeight),
		)
		cfg.RelevanceWeight, cfg.PotentialWeight = 0.6, 0.4
	case math.Abs(sum-1) > 1e-9:
		logger.Warn("selection weights renormalised",
			slog.Float64("relevance", cfg.RelevanceWeight),
			slog.Float64("potential", cfg.PotentialWeight),
		)
		cfg.RelevanceWeight /= sum
		cfg.PotentialWeight /= sum
	}

	return &Selector{
		cfg:       cfg,
		fixtures:  fixtures,
		estimator: estimator,
		rules:     rulesEngine,
		catalog:   cat,
		teams:     teams,
		logger:    logger,
	}
}

// SelectForMonitoring returns the tier's ranked fixture list, best
// first, truncated to the tier quota. One source failing degrades to
// the other's listing; when both fail an error is returned so the
// caller keeps its previous watch list instead of reconciling against
// an empty schedule.
func (s *Selector) SelectForMonitoring(ctx context.Context, tier domain.Tier) ([]domain.ScoredFixture, error) {
	candidates, err := s.gather(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]domain.ScoredFixture, 0, len(candidates))
	for _, snap := range candidates {
		relevance := s.relevance(snap)
		potential := s.potential(ctx, snap)
		scored = append(scored, domain.ScoredFixture{
			Snapshot:  snap,
			Relevance: relevance,
			Potential: potential,
			Score:     relevance*s.cfg.RelevanceWeight + potential*s.cfg.PotentialWeight,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Snapshot.FixtureID < scored[j].Snapshot.FixtureID
	})

	if quota := s.cfg.TierQuotas[tier]; quota > 0 && len(scored) > quota {
		scored = scored[:quota]
	}
	return scored, nil
}

// gather merges live fixtures with those kicking off inside the
// look-ahead window. Live snapshots win duplicates. A genuinely empty
// schedule and a total source outage must stay distinguishable, so
// both listings failing is an error rather than an empty result.
func (s *Selector) gather(ctx context.Context) ([]domain.FixtureSnapshot, error) {
	seen := make(map[int64]bool)
	var out []domain.FixtureSnapshot

	live, liveErr := s.fixtures.LiveFixtures(ctx)
	if liveErr != nil {
		s.logger.Warn("live fixture listing failed", slog.Any("error", liveErr))
	}
	for _, snap := range live {
		if !seen[snap.FixtureID] {
			seen[snap.FixtureID] = true
			out = append(out, snap)
		}
	}

	upcoming, upErr := s.fixtures.UpcomingFixtures(ctx, s.cfg.LookAhead)
	if upErr != nil {
		s.logger.Warn("upcoming fixture listing failed", slog.Any("error", upErr))
	}
	for _, snap := range upcoming {
		if !seen[snap.FixtureID] {
			seen[snap.FixtureID] = true
			out = append(out, snap)
		}
	}

	if liveErr != nil && upErr != nil {
		return nil, fmt.Errorf("selector: every fixture listing failed: %w", errors.Join(liveErr, upErr))
	}
	return out, nil
}

// relevance scores audience interest on [0,10]: league popularity,
// team popularity skewed toward the bigger draw, and live-state boosts.
func (s *Selector) relevance(snap domain.FixtureSnapshot) float64 {
	league := s.catalog.LeaguePopularity(snap.League.Name, snap.League.Country)

	homePop := s.catalog.TeamPopularity(snap.Home.Name)
	awayPop := s.catalog.TeamPopularity(snap.Away.Name)
	stronger, weaker := homePop, awayPop
	if awayPop > homePop {
		stronger, weaker = awayPop, homePop
	}
	teams := stronger*strongTeamShare + weaker*weakTeamShare

	score := league*leagueWeight + teams*teamWeight
	if snap.Live() {
		score += liveBonus
		if snap.Elapsed >= lateGameFrom {
			score += lateGameBonus
		}
	}
	return clamp(score, 0, maxSubScore)
}

// potential scores alert likelihood on [0,10], preferring the learned
// estimator and falling back to rules plus historical team data.
func (s *Selector) potential(ctx context.Context, snap domain.FixtureSnapshot) float64 {
	p, err := s.estimator.PredictPotential(ctx, snap)
	if err == nil {
		return clamp(p*maxSubScore, 0, maxSubScore)
	}
	if !errors.Is(err, domain.ErrNoModel) {
		s.logger.Warn("potential estimator failed, using rule fallback",
			slog.Int64("fixture_id", snap.FixtureID),
			slog.Any("error", err),
		)
	}
	return s.fallbackPotential(ctx, snap)
}

// fallbackPotential combines the rule potential (live state, phase,
// closeness, activity) with team-strength parity and head-to-head
// volatility. Missing historical data contributes neutral values.
func (s *Selector) fallbackPotential(ctx context.Context, snap domain.FixtureSnapshot) float64 {
	base := s.rules.PredictPotential(snap) * 6 // [0,6]

	parity := 1.0
	homeStrength, errHome := s.teams.TeamStrength(ctx, snap.Home.ID)
	awayStrength, errAway := s.teams.TeamStrength(ctx, snap.Away.ID)
	if errHome == nil && errAway == nil {
		parity = clamp((1-math.Abs(homeStrength-awayStrength)/10)*2, 0, 2)
	}

	volatility := 0.75
	h2h, err := s.teams.HeadToHead(ctx, snap.Home.ID, snap.Away.ID)
	if err == nil && h2h.Matches > 0 {
		switch {
		case h2h.AvgGoals >= 3.5:
			volatility = 2.0
		case h2h.AvgGoals >= 2.5:
			volatility = 1.5
		case h2h.AvgGoals >= 1.5:
			volatility = 1.0
		default:
			volatility = 0.5
		}
	}

	return clamp(base+parity+volatility, 0, maxSubScore)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
