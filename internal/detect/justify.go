package detect

import (
	"context"
	"fmt"

	"github.com/oddsight/oddsight/internal/domain"
)

// justify builds the ordered context lines for an opportunity: the rule
// factors that fired, goal arithmetic for over markets, the historical
// base rate and recent head-to-head history. All inputs are
// deterministic for a given snapshot and store state.
func (d *Detector) justify(ctx context.Context, snap domain.FixtureSnapshot, best candidate) []string {
	lines := d.rules.Signals(best.market, snap)

	if line, ok := best.market.GoalLine(); ok {
		needed := int(line) + 1 - snap.Score.Total()
		if needed >= 1 {
			minutesLeft := 95 - snap.Elapsed
			if minutesLeft < 0 {
				minutesLeft = 0
			}
			lines = append(lines, fmt.Sprintf("%d more goal(s) needed, about %d minutes to play", needed, minutesLeft))
		}
	}

	lines = append(lines, fmt.Sprintf("%s lands in %.0f%% of comparable matches",
		best.market.Label(), d.catalog.BaseRate(best.market)*100))

	if h2h, err := d.teams.HeadToHead(ctx, snap.Home.ID, snap.Away.ID); err == nil && h2h.Matches > 0 {
		lines = append(lines, fmt.Sprintf("last %d meetings averaged %.1f goals", h2h.Matches, h2h.AvgGoals))
	}

	lines = append(lines, fmt.Sprintf("best price %.2f at %s", best.quote.Price, best.quote.Bookmaker))
	return lines
}
