package sportsdata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
)

// apiEnvelope is the response wrapper every endpoint returns. The errors
// field is [] when empty and an object of field-to-message pairs when set,
// so it has to stay raw until inspected.
type apiEnvelope struct {
	Get      string          `json:"get"`
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Response json.RawMessage `json:"response"`
}

// err extracts an API-level error from the envelope. Quota exhaustion
// arrives as HTTP 200 with an errors entry, so it is mapped to
// domain.ErrRateLimited here rather than in the status check.
func (e *apiEnvelope) err() error {
	trimmed := strings.TrimSpace(string(e.Errors))
	if trimmed == "" || trimmed == "[]" || trimmed == "null" {
		return nil
	}

	var fields map[string]string
	if err := json.Unmarshal(e.Errors, &fields); err != nil || len(fields) == 0 {
		return nil
	}

	for key, msg := range fields {
		if key == "requests" || key == "rateLimit" {
			return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
		}
	}

	parts := make([]string, 0, len(fields))
	for key, msg := range fields {
		parts = append(parts, key+": "+msg)
	}
	sort.Strings(parts)
	return fmt.Errorf("api error: %s", strings.Join(parts, "; "))
}

type apiFixtureEntry struct {
	Fixture    apiFixture          `json:"fixture"`
	League     apiLeague           `json:"league"`
	Teams      apiTeams            `json:"teams"`
	Goals      apiGoals            `json:"goals"`
	Events     []apiEvent          `json:"events"`
	Statistics []apiTeamStatistics `json:"statistics"`
}

type apiFixture struct {
	ID     int64     `json:"id"`
	Date   time.Time `json:"date"`
	Status struct {
		Short   string `json:"short"`
		Elapsed *int   `json:"elapsed"`
	} `json:"status"`
}

type apiLeague struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

type apiTeam struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type apiTeams struct {
	Home apiTeam `json:"home"`
	Away apiTeam `json:"away"`
}

// apiGoals uses pointers because the feed sends null before kickoff.
type apiGoals struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

type apiEvent struct {
	Time struct {
		Elapsed int  `json:"elapsed"`
		Extra   *int `json:"extra"`
	} `json:"time"`
	Team   apiTeam `json:"team"`
	Type   string  `json:"type"`
	Detail string  `json:"detail"`
}

type apiTeamStatistics struct {
	Team       apiTeam        `json:"team"`
	Statistics []apiStatistic `json:"statistics"`
}

// apiStatistic values arrive as numbers, percent strings ("54%") or null.
type apiStatistic struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type apiOddsEntry struct {
	Fixture struct {
		ID int64 `json:"id"`
	} `json:"fixture"`
	Bookmakers []apiBookmaker `json:"bookmakers"`
}

type apiBookmaker struct {
	Name string   `json:"name"`
	Bets []apiBet `json:"bets"`
}

type apiBet struct {
	Name   string        `json:"name"`
	Values []apiBetValue `json:"values"`
}

type apiBetValue struct {
	Value string `json:"value"`
	Odd   string `json:"odd"`
}

// toSnapshot maps a fixture entry to the domain snapshot. Entries from
// list endpoints have no events or statistics; those fields fill in only
// on a by-ID fetch.
func (e *apiFixtureEntry) toSnapshot(retrievedAt time.Time) domain.FixtureSnapshot {
	snap := domain.FixtureSnapshot{
		FixtureID: e.Fixture.ID,
		League: domain.League{
			ID:      e.League.ID,
			Name:    e.League.Name,
			Country: e.League.Country,
		},
		Home:        domain.Team{ID: e.Teams.Home.ID, Name: e.Teams.Home.Name},
		Away:        domain.Team{ID: e.Teams.Away.ID, Name: e.Teams.Away.Name},
		KickoffAt:   e.Fixture.Date.UTC(),
		Status:      domain.FixtureStatus(e.Fixture.Status.Short),
		RetrievedAt: retrievedAt,
	}

	if e.Fixture.Status.Elapsed != nil {
		snap.Elapsed = *e.Fixture.Status.Elapsed
	}
	if e.Goals.Home != nil {
		snap.Score.Home = *e.Goals.Home
	}
	if e.Goals.Away != nil {
		snap.Score.Away = *e.Goals.Away
	}

	snap.Events = mapEvents(e.Events, e.Teams)
	snap.HomeStats = mapStatistics(e.Statistics, e.Teams.Home.ID)
	snap.AwayStats = mapStatistics(e.Statistics, e.Teams.Away.ID)

	return snap
}

// mapEvents converts the feed's timeline. The feed attributes an own goal
// to the player's own team; the domain wants the side the goal counted
// for, so own goals flip.
func mapEvents(events []apiEvent, teams apiTeams) []domain.MatchEvent {
	if len(events) == 0 {
		return nil
	}

	out := make([]domain.MatchEvent, 0, len(events))
	for _, ev := range events {
		kind, ok := eventType(ev.Type)
		if !ok {
			continue
		}

		teamID := ev.Team.ID
		if kind == domain.EventGoal && ev.Detail == "Own Goal" {
			switch teamID {
			case teams.Home.ID:
				teamID = teams.Away.ID
			case teams.Away.ID:
				teamID = teams.Home.ID
			}
		}

		minute := ev.Time.Elapsed
		if ev.Time.Extra != nil {
			minute += *ev.Time.Extra
		}

		out = append(out, domain.MatchEvent{
			Minute: minute,
			TeamID: teamID,
			Type:   kind,
			Detail: ev.Detail,
		})
	}
	return out
}

func eventType(s string) (domain.EventType, bool) {
	switch strings.ToLower(s) {
	case "goal":
		return domain.EventGoal, true
	case "card":
		return domain.EventCard, true
	case "subst":
		return domain.EventSubstitution, true
	case "var":
		return domain.EventVAR, true
	}
	return "", false
}

// mapStatistics extracts one side's statistics block, nil when the feed
// has not reported any yet.
func mapStatistics(blocks []apiTeamStatistics, teamID int64) *domain.TeamStats {
	for _, block := range blocks {
		if block.Team.ID != teamID {
			continue
		}

		stats := &domain.TeamStats{}
		for _, st := range block.Statistics {
			switch st.Type {
			case "Ball Possession":
				stats.Possession = percentValue(st.Value)
			case "Shots on Goal":
				stats.ShotsOnTarget = intValue(st.Value)
			case "Total Shots":
				stats.ShotsTotal = intValue(st.Value)
			case "Corner Kicks":
				stats.Corners = intValue(st.Value)
			case "Yellow Cards":
				stats.YellowCards = intValue(st.Value)
			case "Red Cards":
				stats.RedCards = intValue(st.Value)
			}
		}
		return stats
	}
	return nil
}

// intValue parses a statistic value that may be a JSON number, a quoted
// number, or null.
func intValue(raw json.RawMessage) int {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0
	}
	trimmed = strings.Trim(trimmed, `"`)
	v, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0
	}
	return v
}

// percentValue parses values like "54%" into 54.0.
func percentValue(raw json.RawMessage) float64 {
	trimmed := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	trimmed = strings.TrimSuffix(trimmed, "%")
	if trimmed == "" || trimmed == "null" {
		return 0
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	return v
}

// mapOdds flattens the bookmaker tree into quotes for the markets the
// detector prices, keeping only each market's canonical outcome. Corner
// window odds have no book feed, so that market never appears here.
func mapOdds(entries []apiOddsEntry) []domain.OddsQuote {
	var quotes []domain.OddsQuote
	for _, entry := range entries {
		for _, book := range entry.Bookmakers {
			for _, bet := range book.Bets {
				for _, val := range bet.Values {
					market, outcome, ok := betOutcome(bet.Name, val.Value)
					if !ok {
						continue
					}
					price, err := strconv.ParseFloat(val.Odd, 64)
					if err != nil || price <= 1 {
						continue
					}
					quotes = append(quotes, domain.OddsQuote{
						Bookmaker: book.Name,
						Market:    market,
						Outcome:   outcome,
						Price:     price,
					})
				}
			}
		}
	}
	return quotes
}

// betOutcome matches a feed bet name and selection against the domain
// markets. Unknown bets and the non-canonical sides are dropped.
func betOutcome(betName, value string) (domain.Market, string, bool) {
	switch betName {
	case "Goals Over/Under":
		switch value {
		case "Over 0.5":
			return domain.MarketOver05, "over", true
		case "Over 1.5":
			return domain.MarketOver15, "over", true
		case "Over 2.5":
			return domain.MarketOver25, "over", true
		}
	case "Both Teams Score":
		if value == "Yes" {
			return domain.MarketBTTS, "yes", true
		}
	case "Next Goal", "Team To Score Next":
		if value == "Home" || value == "1" {
			return domain.MarketNextGoal, "home", true
		}
	}
	return 0, "", false
}
