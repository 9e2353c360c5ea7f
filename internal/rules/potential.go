package rules

import "github.com/oddsight/oddsight/internal/domain"

// PredictPotential scores how likely a fixture is to produce alert-worthy
// moments soon, on [0,1]. It reads only the snapshot: live state, match
// phase, score closeness and attacking activity. The selector uses it
// when no learned potential model is available.
func (e *Engine) PredictPotential(snap domain.FixtureSnapshot) float64 {
	score := 0.0

	if snap.Live() {
		score += 0.3
	}

	// the 30'-85' window is where in-play markets move the most
	if snap.Elapsed >= 30 && snap.Elapsed <= 85 {
		score += 0.2
	}

	switch diff := snap.Score.Diff(); {
	case diff == 0:
		score += 0.2
	case diff == 1 || diff == -1:
		score += 0.15
	default:
		score += 0.05
	}

	if h, a := snap.HomeStats, snap.AwayStats; h != nil && a != nil {
		if h.ShotsOnTarget+a.ShotsOnTarget >= 5 {
			score += 0.15
		}
		if h.Corners+a.Corners >= 6 {
			score += 0.15
		}
	}

	return clamp(score, 0, 1)
}
