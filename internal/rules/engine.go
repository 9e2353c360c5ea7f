// Package rules contains the hand-built prediction heuristics: weighted
// in-match factors per market, deterministic overrides for outcomes the
// score has already decided, and a coarse fixture-potential score. The
// rule path has no external dependencies, so it stays available when
// learned models are missing or broken.
package rules

import (
	"github.com/oddsight/oddsight/internal/domain"
)

const (
	// factorConfidence is added per fired factor.
	factorConfidence = 0.08

	// elapsedConfidenceMax is the confidence bonus at full time; later
	// match states carry more information.
	elapsedConfidenceMax = 0.2

	minConfidence = 0.2
	maxConfidence = 0.9

	matchMinutes = 95.0
)

// confidenceBase is the per-market starting confidence before factor
// and elapsed-time bonuses.
var confidenceBase = map[domain.Market]float64{
	domain.MarketNextGoal:     0.35,
	domain.MarketOver05:       0.40,
	domain.MarketOver15:       0.38,
	domain.MarketOver25:       0.35,
	domain.MarketBTTS:         0.35,
	domain.MarketCornerNext10: 0.30,
}

// Engine evaluates rule-based predictions. It is stateless and safe
// for concurrent use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate produces the rule-based prediction for one market. Factors
// fire only past their margins; the net signed weight maps onto a
// probability around the 0.5 midpoint, then clamps into the market's
// safety band. Outcomes the score has already decided return 1.0/1.0.
func (e *Engine) Evaluate(market domain.Market, snap domain.FixtureSnapshot) domain.MarketPrediction {
	if resolved(market, snap) {
		return domain.MarketPrediction{
			Market:      market,
			Probability: 1.0,
			Confidence:  1.0,
			Source:      domain.SourceResolved,
		}
	}

	net, total, fired := evalMarket(market, snap)
	p := 0.5
	if total > 0 {
		p = 0.5 + net/(2*total)
	}
	lo, hi := safetyBand(market)
	p = clamp(p, lo, hi)

	return domain.MarketPrediction{
		Market:      market,
		Probability: p,
		Confidence:  e.confidence(market, snap, len(fired)),
		Source:      domain.SourceRules,
	}
}

// Signals returns human-readable descriptions of the fired factors,
// used to justify alerts.
func (e *Engine) Signals(market domain.Market, snap domain.FixtureSnapshot) []string {
	_, _, fired := evalMarket(market, snap)
	return fired
}

func (e *Engine) confidence(market domain.Market, snap domain.FixtureSnapshot, firedCount int) float64 {
	c := confidenceBase[market]
	c += factorConfidence * float64(firedCount)
	c += clamp(float64(snap.Elapsed)/matchMinutes, 0, 1) * elapsedConfidenceMax
	return clamp(c, minConfidence, maxConfidence)
}

// resolved reports whether the market outcome is already decided by
// the current score.
func resolved(market domain.Market, snap domain.FixtureSnapshot) bool {
	if line, ok := market.GoalLine(); ok {
		return float64(snap.Score.Total()) > line
	}
	if market == domain.MarketBTTS {
		return snap.Score.Home > 0 && snap.Score.Away > 0
	}
	return false
}

func evalMarket(market domain.Market, snap domain.FixtureSnapshot) (net, total float64, fired []string) {
	switch market {
	case domain.MarketNextGoal:
		return evalNextGoal(snap)
	case domain.MarketOver05, domain.MarketOver15, domain.MarketOver25:
		line, _ := market.GoalLine()
		return evalOver(snap, line)
	case domain.MarketBTTS:
		return evalBTTS(snap)
	case domain.MarketCornerNext10:
		return evalCornerNext10(snap)
	}
	return 0, 0, nil
}

func safetyBand(market domain.Market) (lo, hi float64) {
	switch market {
	case domain.MarketNextGoal, domain.MarketCornerNext10:
		return 0.1, 0.9
	default:
		return 0.05, 0.95
	}
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
