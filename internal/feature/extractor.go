// Package feature turns fixture snapshots into fixed-layout numeric
// vectors for the learned estimators. Every feature is clamped to a
// domain range and rescaled to [0,1]; unavailable inputs map to the
// 0.5 midpoint so sparse provider data degrades instead of failing.
package feature

import (
	"fmt"
	"math"

	"github.com/oddsight/oddsight/internal/domain"
)

const (
	// baseLen is the number of market-independent features.
	baseLen = 13

	// recentWindowMinutes bounds the event window behind momentum and
	// recent-activity features.
	recentWindowMinutes = 15

	// overround deflates bookmaker-implied probabilities to strip the
	// built-in margin.
	overround = 0.95

	// maxMinutes normalises elapsed time; 95 covers stoppage time.
	maxMinutes = 95.0
)

// BaseRates supplies historical priors per market.
type BaseRates interface {
	BaseRate(m domain.Market) float64
}

// Extractor builds feature vectors. It is stateless apart from the
// prior table and safe for concurrent use.
type Extractor struct {
	priors BaseRates
}

func NewExtractor(priors BaseRates) *Extractor {
	return &Extractor{priors: priors}
}

// Length returns the vector length Extract produces for a market.
// Model weight files must match it exactly.
func Length(m domain.Market) int {
	switch m {
	case domain.MarketNextGoal, domain.MarketCornerNext10:
		return baseLen + 3
	default:
		return baseLen + 4
	}
}

// BaseLength returns the length of the market-independent section.
func BaseLength() int { return baseLen }

// ExtractBase builds only the market-independent section, the input to
// the fixture-potential estimator.
func (e *Extractor) ExtractBase(snap domain.FixtureSnapshot) []float64 {
	return e.base(snap)
}

// Extract builds the feature vector for one market. The base section is
// shared across markets; the tail encodes market-specific state such as
// goals needed and odds-implied probabilities.
func (e *Extractor) Extract(snap domain.FixtureSnapshot, market domain.Market) []float64 {
	out := make([]float64, 0, Length(market))
	out = append(out, e.base(snap)...)

	switch market {
	case domain.MarketNextGoal:
		out = append(out,
			impliedFromQuotes(snap, market, "home"),
			impliedFromQuotes(snap, market, "away"),
			e.priors.BaseRate(market),
		)
	case domain.MarketOver05, domain.MarketOver15, domain.MarketOver25:
		line, _ := market.GoalLine()
		out = append(out,
			rescale(goalsNeeded(line, snap.Score.Total()), 0, 4),
			rescale(maxMinutes-float64(snap.Elapsed), 0, maxMinutes),
			impliedFromQuotes(snap, market, "over"),
			e.priors.BaseRate(market),
		)
	case domain.MarketBTTS:
		out = append(out,
			boolFeature(snap.Score.Home > 0),
			boolFeature(snap.Score.Away > 0),
			impliedFromQuotes(snap, market, "yes"),
			e.priors.BaseRate(market),
		)
	case domain.MarketCornerNext10:
		out = append(out,
			rescale(cornerRate(snap), 0, 0.3),
			impliedFromQuotes(snap, market, "yes"),
			e.priors.BaseRate(market),
		)
	}
	return out
}

func (e *Extractor) base(snap domain.FixtureSnapshot) []float64 {
	recentHome, recentAway := RecentEventCounts(snap)
	momentumHome, shift := Momentum(snap)

	features := make([]float64, 0, baseLen)
	features = append(features,
		rescale(float64(snap.Elapsed), 0, maxMinutes),
		rescale(float64(snap.Score.Diff()), -3, 3),
		rescale(float64(snap.Score.Total()), 0, 6),
	)
	if snap.HomeStats == nil || snap.AwayStats == nil {
		features = append(features, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5)
	} else {
		h, a := snap.HomeStats, snap.AwayStats
		poss := 0.5
		if h.Possession > 0 {
			poss = rescale(h.Possession, 0, 100)
		}
		features = append(features,
			poss,
			rescale(float64(h.ShotsOnTarget-a.ShotsOnTarget), -10, 10),
			rescale(float64(h.ShotsOnTarget+a.ShotsOnTarget), 0, 20),
			rescale(float64(h.Corners-a.Corners), -10, 10),
			rescale(float64(h.Corners+a.Corners), 0, 20),
			rescale(float64(h.YellowCards+h.RedCards+a.YellowCards+a.RedCards), 0, 10),
		)
	}
	features = append(features,
		rescale(float64(recentHome), 0, 5),
		rescale(float64(recentAway), 0, 5),
		momentumHome,
		rescale(shift, -1, 1),
	)
	return features
}

// Momentum blends a possession-imbalance term (weight 0.3) with a
// recent-event imbalance term (weight 0.7), both on [-1,1]. It returns
// the home side's attacking share on [0,1] and the signed shift.
func Momentum(snap domain.FixtureSnapshot) (homeShare, shift float64) {
	possImb := 0.0
	if snap.HomeStats != nil && snap.HomeStats.Possession > 0 {
		possImb = clamp((snap.HomeStats.Possession-50)/50, -1, 1)
	}

	recentHome, recentAway := RecentEventCounts(snap)
	evImb := 0.0
	if total := recentHome + recentAway; total > 0 {
		evImb = float64(recentHome-recentAway) / float64(total)
	}

	shift = clamp(0.3*possImb+0.7*evImb, -1, 1)
	homeShare = (1 + shift) / 2
	return homeShare, shift
}

// RecentEventCounts tallies events per side inside the recent window.
func RecentEventCounts(snap domain.FixtureSnapshot) (home, away int) {
	cutoff := snap.Elapsed - recentWindowMinutes
	for _, ev := range snap.Events {
		if ev.Minute < cutoff {
			continue
		}
		switch ev.TeamID {
		case snap.Home.ID:
			home++
		case snap.Away.ID:
			away++
		}
	}
	return home, away
}

// ImpliedProbability deflates a decimal price by the overround factor.
func ImpliedProbability(price float64) float64 {
	if price <= 1 {
		return 0.5
	}
	return clamp(1/price*overround, 0, 1)
}

// BestPrice returns the highest decimal price quoted for a market
// outcome across bookmakers, or domain.ErrNoOdds when no bookmaker
// quotes it.
func BestPrice(snap domain.FixtureSnapshot, market domain.Market, outcome string) (domain.OddsQuote, error) {
	var best domain.OddsQuote
	found := false
	for _, q := range snap.Odds {
		if q.Market != market || q.Outcome != outcome || q.Price <= 1 {
			continue
		}
		if !found || q.Price > best.Price {
			best = q
			found = true
		}
	}
	if !found {
		return domain.OddsQuote{}, fmt.Errorf("feature: %s %s: %w", market, outcome, domain.ErrNoOdds)
	}
	return best, nil
}

func impliedFromQuotes(snap domain.FixtureSnapshot, market domain.Market, outcome string) float64 {
	q, err := BestPrice(snap, market, outcome)
	if err != nil {
		return 0.5
	}
	return ImpliedProbability(q.Price)
}

func goalsNeeded(line float64, total int) float64 {
	need := math.Ceil(line) - float64(total)
	if need < 0 {
		return 0
	}
	return need
}

func cornerRate(snap domain.FixtureSnapshot) float64 {
	if snap.HomeStats == nil || snap.AwayStats == nil || snap.Elapsed <= 0 {
		return 0.15 // midpoint of the clamp range
	}
	total := float64(snap.HomeStats.Corners + snap.AwayStats.Corners)
	return total / float64(snap.Elapsed)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func rescale(v, min, max float64) float64 {
	return (clamp(v, min, max) - min) / (max - min)
}
