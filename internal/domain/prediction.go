package domain

import "time"

// PredictionSource identifies which path produced a prediction.
type PredictionSource string

const (
	SourceRules    PredictionSource = "rules"
	SourceModel    PredictionSource = "model"
	SourceFused    PredictionSource = "fused"
	SourceResolved PredictionSource = "resolved" // outcome already decided by the score
)

// MarketPrediction is a probability estimate for a market's canonical
// outcome together with how much the estimator trusts it.
type MarketPrediction struct {
	Market      Market
	Probability float64 // [0,1]
	Confidence  float64 // [0,1]
	Source      PredictionSource
}

// Opportunity is a detected golden moment: a single market on a single
// fixture whose expected value cleared the detection threshold.
type Opportunity struct {
	ID            string
	FixtureID     int64
	Market        Market
	Tier          Tier
	League        string
	HomeTeam      string
	AwayTeam      string
	Minute        int
	Score         Score
	Probability   float64
	Confidence    float64
	ExpectedValue float64 // probability*price - 1
	BestPrice     float64
	BestBookmaker string
	Prices        map[string]float64 // decimal price per bookmaker
	Context       []string           // ordered justification lines
	DetectedAt    time.Time
}

// ScoredFixture is one selector ranking entry.
type ScoredFixture struct {
	Snapshot  FixtureSnapshot
	Relevance float64 // [0,10]
	Potential float64 // [0,10]
	Score     float64 // relevance and potential blended by configured weights
}
