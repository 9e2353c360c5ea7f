// Package predict fuses learned logistic estimators with the rule
// engine. Models load lazily from disk, at most once per market even
// under concurrent access; a missing or broken model file leaves that
// market on the rule path without surfacing errors to callers.
package predict

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/feature"
	"github.com/oddsight/oddsight/internal/rules"
)

const (
	defaultMLWeight    = 0.7
	defaultRulesWeight = 0.3

	// potentialModel is the filename stem of the fixture-potential
	// estimator, which scores base features only.
	potentialModel = "potential"
)

// Config holds the fusion parameters.
type Config struct {
	ModelsDir   string
	MLWeight    float64
	RulesWeight float64
}

// Engine is the prediction entry point for detection and selection.
type Engine struct {
	cfg       Config
	rules     *rules.Engine
	extractor *feature.Extractor
	logger    *slog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	models map[string]*Model // nil records an absent or rejected model
}

func NewEngine(cfg Config, rulesEngine *rules.Engine, extractor *feature.Extractor, logger *slog.Logger) *Engine {
	if cfg.MLWeight <= 0 {
		cfg.MLWeight = defaultMLWeight
	}
	if cfg.RulesWeight <= 0 {
		cfg.RulesWeight = defaultRulesWeight
	}
	return &Engine{
		cfg:       cfg,
		rules:     rulesEngine,
		extractor: extractor,
		logger:    logger.With(slog.String("component", "predict")),
		models:    make(map[string]*Model),
	}
}

// Predict fuses the learned and rule predictions for one market. The
// returned error is always nil: every failure on the learned path
// degrades to the rule prediction. The error return exists for other
// Predictor implementations.
func (e *Engine) Predict(ctx context.Context, market domain.Market, snap domain.FixtureSnapshot) (domain.MarketPrediction, error) {
	rulePred := e.rules.Evaluate(market, snap)
	if rulePred.Source == domain.SourceResolved {
		return rulePred, nil
	}

	model, ok := e.model(market.String(), feature.Length(market))
	if !ok {
		return rulePred, nil
	}

	p, err := model.Predict(e.extractor.Extract(snap, market))
	if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
		e.logger.Warn("model output rejected, using rules",
			slog.String("market", market.String()),
			slog.Any("error", err),
		)
		return rulePred, nil
	}

	return fuse(market, p, modelConfidence(p), rulePred, e.cfg.MLWeight, e.cfg.RulesWeight), nil
}

// PredictPotential scores fixture potential with the learned potential
// model. It returns domain.ErrNoModel when none is configured so the
// selector can fall back to its rule-based potential.
func (e *Engine) PredictPotential(ctx context.Context, snap domain.FixtureSnapshot) (float64, error) {
	model, ok := e.model(potentialModel, feature.BaseLength())
	if !ok {
		return 0, domain.ErrNoModel
	}
	p, err := model.Predict(e.extractor.ExtractBase(snap))
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, domain.ErrNoModel
	}
	return p, nil
}

// model returns the lazily loaded model for a filename stem. The load
// runs at most once per stem; the outcome, including absence, is cached
// for the engine's lifetime.
func (e *Engine) model(name string, wantLen int) (*Model, bool) {
	e.mu.RLock()
	m, seen := e.models[name]
	e.mu.RUnlock()
	if seen {
		return m, m != nil
	}

	v, _, _ := e.group.Do(name, func() (any, error) {
		e.mu.RLock()
		cached, ok := e.models[name]
		e.mu.RUnlock()
		if ok {
			return cached, nil
		}

		path := filepath.Join(e.cfg.ModelsDir, name+".json")
		loaded, err := loadModelFile(path, name, wantLen)
		switch {
		case err == nil:
			e.logger.Info("model loaded",
				slog.String("model", name),
				slog.Int("version", loaded.Version),
			)
		case errors.Is(err, domain.ErrNoModel):
			e.logger.Info("no model file, staying on rules", slog.String("model", name))
			loaded = nil
		default:
			e.logger.Warn("model load failed, staying on rules",
				slog.String("model", name),
				slog.Any("error", err),
			)
			loaded = nil
		}

		e.mu.Lock()
		e.models[name] = loaded
		e.mu.Unlock()
		return loaded, nil
	})

	m, _ = v.(*Model)
	return m, m != nil
}

// modelConfidence derives confidence from how far the model commits
// away from the 0.5 midpoint.
func modelConfidence(p float64) float64 {
	c := 0.5 + math.Abs(p-0.5)*2*0.4
	if c < 0.5 {
		return 0.5
	}
	if c > 0.9 {
		return 0.9
	}
	return c
}

// fuse blends the two paths by confidence-scaled weights and keeps the
// stronger weighted confidence.
func fuse(market domain.Market, mlP, mlConf float64, rulePred domain.MarketPrediction, wML, wRules float64) domain.MarketPrediction {
	mlWeight := wML * mlConf
	ruleWeight := wRules * rulePred.Confidence

	p := rulePred.Probability
	if mlWeight+ruleWeight > 0 {
		p = (mlP*mlWeight + rulePred.Probability*ruleWeight) / (mlWeight + ruleWeight)
	}
	conf := math.Max(mlConf*wML, rulePred.Confidence*wRules)

	return domain.MarketPrediction{
		Market:      market,
		Probability: clamp01(p),
		Confidence:  clamp01(conf),
		Source:      domain.SourceFused,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
