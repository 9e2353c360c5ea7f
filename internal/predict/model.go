package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
)

// modelFile is the on-disk JSON layout for a trained logistic model.
type modelFile struct {
	Name         string    `json:"market"`
	Version      int       `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Bias         float64   `json:"bias"`
	Weights      []float64 `json:"weights"`
	FeatureCount int       `json:"feature_count"`
}

// Model is a loaded logistic estimator. Weights are ordered to match
// the feature extractor's layout for the model's market.
type Model struct {
	Name      string
	Version   int
	TrainedAt time.Time
	bias      float64
	weights   []float64
}

// loadModelFile reads and validates a model. A missing file maps to
// domain.ErrNoModel so callers can treat absence as a clean rule-only
// configuration rather than a fault.
func loadModelFile(path, name string, wantLen int) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("model %s: %w", name, domain.ErrNoModel)
		}
		return nil, fmt.Errorf("predict: read model %s: %w", name, err)
	}

	var mf modelFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("predict: parse model %s: %w", name, err)
	}
	if mf.Name != name {
		return nil, fmt.Errorf("predict: model %s declares name %q", name, mf.Name)
	}
	if len(mf.Weights) != wantLen {
		return nil, fmt.Errorf("predict: model %s has %d weights, feature layout needs %d", name, len(mf.Weights), wantLen)
	}
	if mf.FeatureCount != 0 && mf.FeatureCount != wantLen {
		return nil, fmt.Errorf("predict: model %s declares %d features, layout needs %d", name, mf.FeatureCount, wantLen)
	}

	return &Model{
		Name:      mf.Name,
		Version:   mf.Version,
		TrainedAt: mf.TrainedAt,
		bias:      mf.Bias,
		weights:   mf.Weights,
	}, nil
}

// Predict runs the logistic scoring function over a feature vector.
func (m *Model) Predict(features []float64) (float64, error) {
	if len(features) != len(m.weights) {
		return 0, fmt.Errorf("predict: model %s got %d features, want %d", m.Name, len(features), len(m.weights))
	}
	z := m.bias
	for i, w := range m.weights {
		z += w * features[i]
	}
	return 1 / (1 + math.Exp(-z)), nil
}
