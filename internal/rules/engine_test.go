package rules

import (
	"math"
	"testing"

	"github.com/oddsight/oddsight/internal/domain"
)

func dominantHomeSnapshot() domain.FixtureSnapshot {
	return domain.FixtureSnapshot{
		FixtureID: 1001,
		Home:      domain.Team{ID: 127, Name: "Flamengo"},
		Away:      domain.Team{ID: 120, Name: "Botafogo"},
		Status:    domain.StatusSecondHalf,
		Elapsed:   80,
		Score:     domain.Score{Home: 1, Away: 0},
		HomeStats: &domain.TeamStats{Possession: 70, ShotsOnTarget: 8, ShotsTotal: 15},
		AwayStats: &domain.TeamStats{Possession: 30, ShotsOnTarget: 2, ShotsTotal: 5},
	}
}

func TestEvaluateResolvedOutcomes(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name     string
		market   domain.Market
		score    domain.Score
		resolved bool
	}{
		{"over 1.5 passed", domain.MarketOver15, domain.Score{Home: 2, Away: 0}, true},
		{"over 0.5 passed", domain.MarketOver05, domain.Score{Home: 1, Away: 0}, true},
		{"over 2.5 not passed at two goals", domain.MarketOver25, domain.Score{Home: 2, Away: 0}, false},
		{"btts both scored", domain.MarketBTTS, domain.Score{Home: 1, Away: 1}, true},
		{"btts one scored", domain.MarketBTTS, domain.Score{Home: 2, Away: 0}, false},
		{"next goal never resolves", domain.MarketNextGoal, domain.Score{Home: 3, Away: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := dominantHomeSnapshot()
			snap.Score = tt.score
			pred := e.Evaluate(tt.market, snap)
			if tt.resolved {
				if pred.Probability != 1.0 || pred.Confidence != 1.0 {
					t.Errorf("got p=%v c=%v, want 1.0/1.0", pred.Probability, pred.Confidence)
				}
				if pred.Source != domain.SourceResolved {
					t.Errorf("source = %s, want %s", pred.Source, domain.SourceResolved)
				}
			} else {
				if pred.Probability == 1.0 {
					t.Error("unresolved market returned probability 1.0")
				}
				if pred.Source != domain.SourceRules {
					t.Errorf("source = %s, want %s", pred.Source, domain.SourceRules)
				}
			}
		})
	}
}

func TestEvaluateNextGoalDominance(t *testing.T) {
	e := NewEngine()
	pred := e.Evaluate(domain.MarketNextGoal, dominantHomeSnapshot())

	// possession and shots-on-target factors fire: net 3.5 of 6.5
	wantP := 0.5 + 3.5/13.0
	if math.Abs(pred.Probability-wantP) > 1e-9 {
		t.Errorf("probability = %v, want %v", pred.Probability, wantP)
	}
	wantC := 0.35 + 2*factorConfidence + 80.0/95.0*elapsedConfidenceMax
	if math.Abs(pred.Confidence-wantC) > 1e-9 {
		t.Errorf("confidence = %v, want %v", pred.Confidence, wantC)
	}
}

func TestEvaluateNextGoalMirror(t *testing.T) {
	e := NewEngine()
	snap := dominantHomeSnapshot()
	snap.HomeStats, snap.AwayStats = snap.AwayStats, snap.HomeStats

	pred := e.Evaluate(domain.MarketNextGoal, snap)
	wantP := 0.5 - 3.5/13.0
	if math.Abs(pred.Probability-wantP) > 1e-9 {
		t.Errorf("probability = %v, want %v", pred.Probability, wantP)
	}
}

func TestEvaluateNeutralWithoutData(t *testing.T) {
	e := NewEngine()
	snap := domain.FixtureSnapshot{
		Home:    domain.Team{ID: 1, Name: "A"},
		Away:    domain.Team{ID: 2, Name: "B"},
		Status:  domain.StatusScheduled,
		Elapsed: 0,
	}
	for _, m := range domain.AllMarkets {
		pred := e.Evaluate(m, snap)
		if pred.Probability != 0.5 {
			t.Errorf("%s: probability = %v, want 0.5 with no signals", m, pred.Probability)
		}
		if pred.Confidence < minConfidence || pred.Confidence > maxConfidence {
			t.Errorf("%s: confidence %v outside [%v,%v]", m, pred.Confidence, minConfidence, maxConfidence)
		}
	}
}

func TestEvaluateSafetyBands(t *testing.T) {
	e := NewEngine()
	// every away-leaning factor fires: raw probability would hit 0.0
	snap := domain.FixtureSnapshot{
		Home:      domain.Team{ID: 1, Name: "A"},
		Away:      domain.Team{ID: 2, Name: "B"},
		Status:    domain.StatusSecondHalf,
		Elapsed:   80,
		Score:     domain.Score{Home: 0, Away: 1},
		HomeStats: &domain.TeamStats{Possession: 25, ShotsOnTarget: 1, Corners: 1},
		AwayStats: &domain.TeamStats{Possession: 75, ShotsOnTarget: 9, Corners: 8},
		Events: []domain.MatchEvent{
			{Minute: 70, TeamID: 2, Type: domain.EventGoal},
			{Minute: 74, TeamID: 2, Type: domain.EventCard},
			{Minute: 78, TeamID: 2, Type: domain.EventSubstitution},
		},
	}
	pred := e.Evaluate(domain.MarketNextGoal, snap)
	if pred.Probability != 0.1 {
		t.Errorf("probability = %v, want clamped floor 0.1", pred.Probability)
	}
}

func TestEvaluateOverTimePressure(t *testing.T) {
	e := NewEngine()
	snap := domain.FixtureSnapshot{
		Home:      domain.Team{ID: 1, Name: "A"},
		Away:      domain.Team{ID: 2, Name: "B"},
		Status:    domain.StatusSecondHalf,
		Elapsed:   85,
		Score:     domain.Score{},
		HomeStats: &domain.TeamStats{Possession: 50, ShotsOnTarget: 1},
		AwayStats: &domain.TeamStats{Possession: 50},
	}
	pred := e.Evaluate(domain.MarketOver25, snap)
	// low shots, quiet spell and three goals needed in ten minutes
	wantP := 0.5 - 6.0/14.0
	if math.Abs(pred.Probability-wantP) > 1e-9 {
		t.Errorf("probability = %v, want %v", pred.Probability, wantP)
	}
	if pred.Probability < 0.05 {
		t.Errorf("probability %v below safety band", pred.Probability)
	}
}

func TestEvaluateBTTSScorelessSide(t *testing.T) {
	e := NewEngine()
	snap := domain.FixtureSnapshot{
		Home:      domain.Team{ID: 1, Name: "A"},
		Away:      domain.Team{ID: 2, Name: "B"},
		Status:    domain.StatusSecondHalf,
		Elapsed:   70,
		Score:     domain.Score{Home: 1, Away: 0},
		HomeStats: &domain.TeamStats{Possession: 60, ShotsOnTarget: 5, Corners: 2},
		AwayStats: &domain.TeamStats{Possession: 40, ShotsOnTarget: 0, Corners: 1},
	}
	pred := e.Evaluate(domain.MarketBTTS, snap)
	// silent scoreless side (-2.0) against one-goal-done (+1.0)
	wantP := 0.5 - 1.0/13.0
	if math.Abs(pred.Probability-wantP) > 1e-9 {
		t.Errorf("probability = %v, want %v", pred.Probability, wantP)
	}
}

func TestSignalsDescribeFiredFactors(t *testing.T) {
	e := NewEngine()
	signals := e.Signals(domain.MarketNextGoal, dominantHomeSnapshot())
	if len(signals) != 2 {
		t.Fatalf("got %d signals %v, want 2", len(signals), signals)
	}
	for _, s := range signals {
		if s == "" {
			t.Error("empty signal text")
		}
	}

	again := e.Signals(domain.MarketNextGoal, dominantHomeSnapshot())
	for i := range signals {
		if signals[i] != again[i] {
			t.Errorf("signals not deterministic: %q vs %q", signals[i], again[i])
		}
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	e := NewEngine()
	snap := dominantHomeSnapshot()
	for _, m := range domain.AllMarkets {
		first := e.Evaluate(m, snap)
		second := e.Evaluate(m, snap)
		if first != second {
			t.Errorf("%s: repeated evaluation differs: %+v vs %+v", m, first, second)
		}
	}
}
