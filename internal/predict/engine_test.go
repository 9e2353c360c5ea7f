package predict

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/feature"
	"github.com/oddsight/oddsight/internal/rules"
)

type stubRates struct{}

func (stubRates) BaseRate(domain.Market) float64 { return 0.5 }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(modelsDir string) (*Engine, *rules.Engine) {
	rulesEngine := rules.NewEngine()
	extractor := feature.NewExtractor(stubRates{})
	engine := NewEngine(Config{ModelsDir: modelsDir}, rulesEngine, extractor, testLogger())
	return engine, rulesEngine
}

func neutralSnapshot() domain.FixtureSnapshot {
	return domain.FixtureSnapshot{
		FixtureID: 42,
		Home:      domain.Team{ID: 1, Name: "A"},
		Away:      domain.Team{ID: 2, Name: "B"},
		Status:    domain.StatusScheduled,
	}
}

func TestPredictFusesModelAndRules(t *testing.T) {
	engine, rulesEngine := newTestEngine("testdata")
	snap := neutralSnapshot()

	pred, err := engine.Predict(context.Background(), domain.MarketNextGoal, snap)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Source != domain.SourceFused {
		t.Fatalf("source = %s, want %s", pred.Source, domain.SourceFused)
	}

	// testdata/next_goal.json is all-zero weights with bias ln(4): the
	// model always outputs 0.8
	rulePred := rulesEngine.Evaluate(domain.MarketNextGoal, snap)
	mlP := 0.8
	mlConf := 0.5 + math.Abs(mlP-0.5)*2*0.4
	mlW := defaultMLWeight * mlConf
	ruleW := defaultRulesWeight * rulePred.Confidence
	wantP := (mlP*mlW + rulePred.Probability*ruleW) / (mlW + ruleW)
	wantC := math.Max(mlConf*defaultMLWeight, rulePred.Confidence*defaultRulesWeight)

	if math.Abs(pred.Probability-wantP) > 1e-9 {
		t.Errorf("probability = %v, want %v", pred.Probability, wantP)
	}
	if math.Abs(pred.Confidence-wantC) > 1e-9 {
		t.Errorf("confidence = %v, want %v", pred.Confidence, wantC)
	}
}

func TestPredictMissingModelFallsBackToRules(t *testing.T) {
	engine, rulesEngine := newTestEngine("testdata")
	snap := neutralSnapshot()

	pred, err := engine.Predict(context.Background(), domain.MarketBTTS, snap)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	want := rulesEngine.Evaluate(domain.MarketBTTS, snap)
	if pred != want {
		t.Errorf("got %+v, want rule prediction %+v", pred, want)
	}
}

func TestPredictMalformedModelFallsBackToRules(t *testing.T) {
	engine, rulesEngine := newTestEngine("testdata")
	snap := neutralSnapshot()

	// testdata/over_1_5.json carries three weights, the layout needs 17
	pred, err := engine.Predict(context.Background(), domain.MarketOver15, snap)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	want := rulesEngine.Evaluate(domain.MarketOver15, snap)
	if pred != want {
		t.Errorf("got %+v, want rule prediction %+v", pred, want)
	}
}

func TestPredictResolvedBypassesModel(t *testing.T) {
	engine, _ := newTestEngine("testdata")
	snap := neutralSnapshot()
	snap.Score = domain.Score{Home: 2, Away: 1}

	pred, err := engine.Predict(context.Background(), domain.MarketOver15, snap)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Source != domain.SourceResolved || pred.Probability != 1.0 || pred.Confidence != 1.0 {
		t.Errorf("got %+v, want resolved 1.0/1.0", pred)
	}
}

func TestPredictIdempotent(t *testing.T) {
	engine, _ := newTestEngine("testdata")
	snap := neutralSnapshot()

	first, err := engine.Predict(context.Background(), domain.MarketNextGoal, snap)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	second, err := engine.Predict(context.Background(), domain.MarketNextGoal, snap)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if first != second {
		t.Errorf("repeated prediction differs: %+v vs %+v", first, second)
	}
}

func TestPredictPotentialNoModel(t *testing.T) {
	engine, _ := newTestEngine(t.TempDir())
	_, err := engine.PredictPotential(context.Background(), neutralSnapshot())
	if !errors.Is(err, domain.ErrNoModel) {
		t.Errorf("err = %v, want ErrNoModel", err)
	}
}

func TestPredictPotentialFromModel(t *testing.T) {
	engine, _ := newTestEngine("testdata")
	p, err := engine.PredictPotential(context.Background(), neutralSnapshot())
	if err != nil {
		t.Fatalf("PredictPotential: %v", err)
	}
	// zero weights and zero bias put the sigmoid at the midpoint
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("potential = %v, want 0.5", p)
	}
}

func TestLoadModelFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		stem    string
		wantLen int
		wantErr bool
	}{
		{"valid", "testdata/next_goal.json", "next_goal", 16, false},
		{"length mismatch", "testdata/over_1_5.json", "over_1_5", 17, true},
		{"name mismatch", "testdata/next_goal.json", "btts", 16, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadModelFile(tt.path, tt.stem, tt.wantLen)
			if (err != nil) != tt.wantErr {
				t.Errorf("loadModelFile err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadModelFileMissingMapsToErrNoModel(t *testing.T) {
	_, err := loadModelFile(t.TempDir()+"/nope.json", "nope", 16)
	if !errors.Is(err, domain.ErrNoModel) {
		t.Errorf("err = %v, want ErrNoModel", err)
	}
}
