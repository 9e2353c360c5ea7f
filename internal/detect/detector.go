// Package detect turns predictions and live odds into golden moments:
// per-market expected value against the best available price, filtered
// by the requesting tier's confidence gate, at most one opportunity per
// fixture per call.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oddsight/oddsight/internal/catalog"
	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/feature"
	"github.com/oddsight/oddsight/internal/rules"
)

// Predictor estimates market probabilities. Implementations may fail;
// the detector falls back to the rule engine for that market.
type Predictor interface {
	Predict(ctx context.Context, market domain.Market, snap domain.FixtureSnapshot) (domain.MarketPrediction, error)
}

// SnapshotSource serves the freshest available fixture state.
type SnapshotSource interface {
	Snapshot(ctx context.Context, fixtureID int64) (domain.FixtureSnapshot, error)
}

// Config holds detection thresholds.
type Config struct {
	MinExpectedValue float64
	TierConfidence   map[domain.Tier]float64
}

// Detector evaluates all markets on a fixture and keeps the best
// value-positive one.
type Detector struct {
	cfg       Config
	fixtures  SnapshotSource
	predictor Predictor
	rules     *rules.Engine
	catalog   *catalog.Catalog
	teams     domain.TeamStatsStore
	logger    *slog.Logger
}

func NewDetector(cfg Config, fixtures SnapshotSource, predictor Predictor, rulesEngine *rules.Engine, cat *catalog.Catalog, teams domain.TeamStatsStore, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:       cfg,
		fixtures:  fixtures,
		predictor: predictor,
		rules:     rulesEngine,
		catalog:   cat,
		teams:     teams,
		logger:    logger.With(slog.String("component", "detect")),
	}
}

type candidate struct {
	market domain.Market
	pred   domain.MarketPrediction
	quote  domain.OddsQuote
	ev     float64
}

// Detect evaluates every market on the fixture for one tier. It returns
// nil without error when nothing qualifies: unquoted markets and
// below-threshold value are normal outcomes, not faults. Snapshot
// retrieval failures return an error so the caller can retry next cycle.
func (d *Detector) Detect(ctx context.Context, fixtureID int64, tier domain.Tier) (*domain.Opportunity, error) {
	snap, err := d.fixtures.Snapshot(ctx, fixtureID)
	if err != nil {
		return nil, fmt.Errorf("detect: fixture %d: %w", fixtureID, err)
	}

	// Opportunities only exist in play. Scheduled and finished fixtures
	// still flow through here while monitored, so the fetch above keeps
	// their stored state current.
	if !snap.Live() {
		return nil, nil
	}

	threshold, ok := d.cfg.TierConfidence[tier]
	if !ok {
		threshold = 0.85
	}

	var candidates []candidate
	for _, market := range domain.AllMarkets {
		pred, err := d.predictor.Predict(ctx, market, snap)
		if err != nil {
			d.logger.Warn("predictor failed, using rules",
				slog.Int64("fixture_id", fixtureID),
				slog.String("market", market.String()),
				slog.Any("error", err),
			)
			pred = d.rules.Evaluate(market, snap)
		}

		quote, err := feature.BestPrice(snap, market, market.Outcome())
		if errors.Is(err, domain.ErrNoOdds) {
			continue
		}

		ev := pred.Probability*quote.Price - 1
		if ev < d.cfg.MinExpectedValue {
			continue
		}
		if pred.Confidence < threshold {
			continue
		}
		candidates = append(candidates, candidate{market: market, pred: pred, quote: quote, ev: ev})
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ev > best.ev || (c.ev == best.ev && c.pred.Confidence > best.pred.Confidence) {
			best = c
		}
	}

	prices := make(map[string]float64)
	for _, q := range snap.Odds {
		if q.Market == best.market && q.Outcome == best.market.Outcome() && q.Price > 1 {
			prices[q.Bookmaker] = q.Price
		}
	}

	opp := &domain.Opportunity{
		ID:            uuid.NewString(),
		FixtureID:     fixtureID,
		Market:        best.market,
		Tier:          tier,
		League:        snap.League.Name,
		HomeTeam:      snap.Home.Name,
		AwayTeam:      snap.Away.Name,
		Minute:        snap.Elapsed,
		Score:         snap.Score,
		Probability:   best.pred.Probability,
		Confidence:    best.pred.Confidence,
		ExpectedValue: best.ev,
		BestPrice:     best.quote.Price,
		BestBookmaker: best.quote.Bookmaker,
		Prices:        prices,
		Context:       d.justify(ctx, snap, best),
		DetectedAt:    time.Now().UTC(),
	}

	d.logger.Info("opportunity detected",
		slog.Int64("fixture_id", fixtureID),
		slog.String("market", best.market.String()),
		slog.String("tier", tier.String()),
		slog.Float64("probability", best.pred.Probability),
		slog.Float64("expected_value", best.ev),
	)
	return opp, nil
}
