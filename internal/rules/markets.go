package rules

import (
	"fmt"

	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/feature"
)

// Factor margins. A factor contributes its weight only when the match
// state clears the margin, so quiet games stay near the midpoint.
const (
	possessionEdge    = 65.0
	shotsOnTargetEdge = 3
	cornersEdge       = 3
	momentumEdge      = 0.25

	highShotVolume  = 6
	lowShotVolume   = 2
	highCornerCount = 8
	busyRecentCount = 3
	quietRecentFrom = 75

	highCornerRate = 0.12 // roughly one corner every eight minutes
	lowCornerRate  = 0.04

	lateMinute = 70
)

// evalNextGoal weighs the home side's claim on the next goal.
func evalNextGoal(snap domain.FixtureSnapshot) (net, total float64, fired []string) {
	total = 6.5

	if h, a := snap.HomeStats, snap.AwayStats; h != nil && a != nil {
		switch {
		case h.Possession >= possessionEdge:
			net += 1.5
			fired = append(fired, fmt.Sprintf("%s control possession (%.0f%%)", snap.Home.Name, h.Possession))
		case a.Possession >= possessionEdge:
			net -= 1.5
			fired = append(fired, fmt.Sprintf("%s control possession (%.0f%%)", snap.Away.Name, a.Possession))
		}

		switch diff := h.ShotsOnTarget - a.ShotsOnTarget; {
		case diff >= shotsOnTargetEdge:
			net += 2.0
			fired = append(fired, fmt.Sprintf("shots on target %d-%d for %s", h.ShotsOnTarget, a.ShotsOnTarget, snap.Home.Name))
		case diff <= -shotsOnTargetEdge:
			net -= 2.0
			fired = append(fired, fmt.Sprintf("shots on target %d-%d for %s", a.ShotsOnTarget, h.ShotsOnTarget, snap.Away.Name))
		}

		switch diff := h.Corners - a.Corners; {
		case diff >= cornersEdge:
			net += 1.0
			fired = append(fired, fmt.Sprintf("corner count %d-%d for %s", h.Corners, a.Corners, snap.Home.Name))
		case diff <= -cornersEdge:
			net -= 1.0
			fired = append(fired, fmt.Sprintf("corner count %d-%d for %s", a.Corners, h.Corners, snap.Away.Name))
		}
	}

	_, shift := feature.Momentum(snap)
	switch {
	case shift >= momentumEdge:
		net += 2.0
		fired = append(fired, fmt.Sprintf("momentum %.2f toward %s", shift, snap.Home.Name))
	case shift <= -momentumEdge:
		net -= 2.0
		fired = append(fired, fmt.Sprintf("momentum %.2f toward %s", -shift, snap.Away.Name))
	}

	return net, total, fired
}

// evalOver weighs the chance of the match passing a goal line it has
// not passed yet.
func evalOver(snap domain.FixtureSnapshot, line float64) (net, total float64, fired []string) {
	total = 7.0
	needed := int(line) + 1 - snap.Score.Total()
	minutesLeft := matchMinutes - float64(snap.Elapsed)
	if minutesLeft < 0 {
		minutesLeft = 0
	}

	if h, a := snap.HomeStats, snap.AwayStats; h != nil && a != nil {
		switch sot := h.ShotsOnTarget + a.ShotsOnTarget; {
		case sot >= highShotVolume:
			net += 2.0
			fired = append(fired, fmt.Sprintf("%d shots on target combined", sot))
		case sot <= lowShotVolume && snap.Elapsed >= 60:
			net -= 2.0
			fired = append(fired, fmt.Sprintf("only %d shots on target by minute %d", sot, snap.Elapsed))
		}

		if corners := h.Corners + a.Corners; corners >= highCornerCount {
			net += 1.0
			fired = append(fired, fmt.Sprintf("%d corners show sustained pressure", corners))
		}
	}

	recentHome, recentAway := feature.RecentEventCounts(snap)
	switch recent := recentHome + recentAway; {
	case recent >= busyRecentCount:
		net += 1.5
		fired = append(fired, fmt.Sprintf("%d match events in the last 15 minutes", recent))
	case recent == 0 && snap.Elapsed >= quietRecentFrom:
		net -= 1.5
		fired = append(fired, "no match events in the last 15 minutes")
	}

	if needed >= 1 && minutesLeft < 15*float64(needed) {
		net -= 2.5
		fired = append(fired, fmt.Sprintf("%d more goals needed with %.0f minutes left", needed, minutesLeft))
	}

	return net, total, fired
}

// evalBTTS weighs the chance of the remaining scoreless side scoring.
func evalBTTS(snap domain.FixtureSnapshot) (net, total float64, fired []string) {
	total = 6.5
	minutesLeft := matchMinutes - float64(snap.Elapsed)
	if minutesLeft < 0 {
		minutesLeft = 0
	}

	if h, a := snap.HomeStats, snap.AwayStats; h != nil && a != nil {
		minSot := h.ShotsOnTarget
		if a.ShotsOnTarget < minSot {
			minSot = a.ShotsOnTarget
		}
		switch {
		case minSot >= 2:
			net += 2.0
			fired = append(fired, "both sides register shots on target")
		case scorelessSideSilent(snap) && snap.Elapsed >= 60:
			net -= 2.0
			fired = append(fired, fmt.Sprintf("%s without a shot on target by minute %d", scorelessSideName(snap), snap.Elapsed))
		}

		if h.Corners >= 3 && a.Corners >= 3 {
			net += 1.0
			fired = append(fired, "corners flowing at both ends")
		}
	}

	if (snap.Score.Home > 0) != (snap.Score.Away > 0) {
		net += 1.0
		fired = append(fired, fmt.Sprintf("%s already scored, one goal completes it", scoredSideName(snap)))
	}

	if minutesLeft < 15 && (snap.Score.Home == 0 || snap.Score.Away == 0) {
		net -= 2.5
		fired = append(fired, fmt.Sprintf("%.0f minutes left for the remaining goal", minutesLeft))
	}

	return net, total, fired
}

// evalCornerNext10 weighs the chance of a corner inside the next ten
// minutes from the current corner rate and attacking pressure.
func evalCornerNext10(snap domain.FixtureSnapshot) (net, total float64, fired []string) {
	total = 5.5

	if h, a := snap.HomeStats, snap.AwayStats; h != nil && a != nil && snap.Elapsed > 0 {
		rate := float64(h.Corners+a.Corners) / float64(snap.Elapsed)
		switch {
		case rate >= highCornerRate:
			net += 2.0
			fired = append(fired, fmt.Sprintf("corner every %.0f minutes so far", 1/rate))
		case rate <= lowCornerRate && snap.Elapsed >= 30:
			net -= 2.0
			fired = append(fired, fmt.Sprintf("only %d corners by minute %d", h.Corners+a.Corners, snap.Elapsed))
		}

		if sot := h.ShotsOnTarget + a.ShotsOnTarget; sot >= 5 {
			net += 1.0
			fired = append(fired, fmt.Sprintf("%d shots on target feed set pieces", sot))
		}
	}

	recentHome, recentAway := feature.RecentEventCounts(snap)
	if recentHome+recentAway >= 2 {
		net += 1.5
		fired = append(fired, "busy spell in the last 15 minutes")
	}

	if snap.Score.Diff() != 0 && snap.Elapsed >= lateMinute {
		net += 1.0
		fired = append(fired, fmt.Sprintf("%s chasing the game late", trailingSideName(snap)))
	}

	return net, total, fired
}

func scorelessSideSilent(snap domain.FixtureSnapshot) bool {
	h, a := snap.HomeStats, snap.AwayStats
	if h == nil || a == nil {
		return false
	}
	if snap.Score.Home == 0 && h.ShotsOnTarget == 0 {
		return true
	}
	if snap.Score.Away == 0 && a.ShotsOnTarget == 0 {
		return true
	}
	return false
}

func scorelessSideName(snap domain.FixtureSnapshot) string {
	if snap.Score.Home == 0 {
		return snap.Home.Name
	}
	return snap.Away.Name
}

func scoredSideName(snap domain.FixtureSnapshot) string {
	if snap.Score.Home > 0 {
		return snap.Home.Name
	}
	return snap.Away.Name
}

func trailingSideName(snap domain.FixtureSnapshot) string {
	if snap.Score.Diff() > 0 {
		return snap.Away.Name
	}
	return snap.Home.Name
}
