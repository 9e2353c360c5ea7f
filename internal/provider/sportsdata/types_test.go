package sportsdata

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
)

const fixtureEntryJSON = `{
	"fixture": {
		"id": 1180542,
		"date": "2026-05-12T19:00:00+00:00",
		"status": {"short": "2H", "elapsed": 61}
	},
	"league": {"id": 71, "name": "Serie A", "country": "Brazil"},
	"teams": {
		"home": {"id": 127, "name": "Flamengo"},
		"away": {"id": 121, "name": "Palmeiras"}
	},
	"goals": {"home": 1, "away": 0},
	"events": [
		{"time": {"elapsed": 12, "extra": null}, "team": {"id": 127, "name": "Flamengo"}, "type": "Goal", "detail": "Normal Goal"},
		{"time": {"elapsed": 45, "extra": 2}, "team": {"id": 121, "name": "Palmeiras"}, "type": "Card", "detail": "Yellow Card"},
		{"time": {"elapsed": 58, "extra": null}, "team": {"id": 121, "name": "Palmeiras"}, "type": "subst", "detail": "Substitution 1"}
	],
	"statistics": [
		{
			"team": {"id": 127, "name": "Flamengo"},
			"statistics": [
				{"type": "Ball Possession", "value": "58%"},
				{"type": "Shots on Goal", "value": 5},
				{"type": "Total Shots", "value": 11},
				{"type": "Corner Kicks", "value": 6},
				{"type": "Yellow Cards", "value": null},
				{"type": "Red Cards", "value": 0}
			]
		},
		{
			"team": {"id": 121, "name": "Palmeiras"},
			"statistics": [
				{"type": "Ball Possession", "value": "42%"},
				{"type": "Shots on Goal", "value": 2},
				{"type": "Total Shots", "value": 7},
				{"type": "Corner Kicks", "value": 3},
				{"type": "Yellow Cards", "value": 1},
				{"type": "Red Cards", "value": 0}
			]
		}
	]
}`

func TestToSnapshot(t *testing.T) {
	var entry apiFixtureEntry
	if err := json.Unmarshal([]byte(fixtureEntryJSON), &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}

	retrievedAt := time.Date(2026, 5, 12, 20, 1, 0, 0, time.UTC)
	snap := entry.toSnapshot(retrievedAt)

	if snap.FixtureID != 1180542 {
		t.Errorf("FixtureID = %d", snap.FixtureID)
	}
	if snap.Status != domain.StatusSecondHalf || snap.Elapsed != 61 {
		t.Errorf("status = %s at %d'", snap.Status, snap.Elapsed)
	}
	if snap.Score.Home != 1 || snap.Score.Away != 0 {
		t.Errorf("score = %d-%d", snap.Score.Home, snap.Score.Away)
	}
	if snap.League.Country != "Brazil" || snap.Home.Name != "Flamengo" || snap.Away.ID != 121 {
		t.Errorf("identity mapping wrong: %+v", snap)
	}

	wantKickoff := time.Date(2026, 5, 12, 19, 0, 0, 0, time.UTC)
	if !snap.KickoffAt.Equal(wantKickoff) {
		t.Errorf("KickoffAt = %v, want %v", snap.KickoffAt, wantKickoff)
	}
	if !snap.RetrievedAt.Equal(retrievedAt) {
		t.Errorf("RetrievedAt = %v", snap.RetrievedAt)
	}

	if len(snap.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(snap.Events))
	}
	if snap.Events[1].Minute != 47 {
		t.Errorf("stoppage time not added: minute = %d, want 47", snap.Events[1].Minute)
	}
	if snap.Events[2].Type != domain.EventSubstitution {
		t.Errorf("event type = %s", snap.Events[2].Type)
	}

	if snap.HomeStats == nil || snap.AwayStats == nil {
		t.Fatal("statistics missing")
	}
	if math.Abs(snap.HomeStats.Possession-58) > 1e-9 {
		t.Errorf("home possession = %v", snap.HomeStats.Possession)
	}
	if snap.HomeStats.ShotsOnTarget != 5 || snap.HomeStats.Corners != 6 {
		t.Errorf("home stats = %+v", snap.HomeStats)
	}
	if snap.HomeStats.YellowCards != 0 {
		t.Errorf("null statistic should map to zero, got %d", snap.HomeStats.YellowCards)
	}
	if snap.AwayStats.ShotsTotal != 7 {
		t.Errorf("away stats = %+v", snap.AwayStats)
	}
}

func TestToSnapshotShallowEntry(t *testing.T) {
	shallow := `{
		"fixture": {"id": 9, "date": "2026-05-12T21:30:00+00:00", "status": {"short": "NS", "elapsed": null}},
		"league": {"id": 71, "name": "Serie A", "country": "Brazil"},
		"teams": {"home": {"id": 1, "name": "A"}, "away": {"id": 2, "name": "B"}},
		"goals": {"home": null, "away": null}
	}`

	var entry apiFixtureEntry
	if err := json.Unmarshal([]byte(shallow), &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}

	snap := entry.toSnapshot(time.Now())
	if snap.Elapsed != 0 || snap.Score.Total() != 0 {
		t.Errorf("pre-kickoff snapshot not zeroed: %+v", snap)
	}
	if snap.HomeStats != nil || snap.Events != nil {
		t.Errorf("shallow entry should have no stats or events")
	}
}

func TestMapEventsCreditsOwnGoalToBenefitingSide(t *testing.T) {
	teams := apiTeams{
		Home: apiTeam{ID: 127, Name: "Flamengo"},
		Away: apiTeam{ID: 121, Name: "Palmeiras"},
	}
	events := []apiEvent{
		{Team: apiTeam{ID: 121}, Type: "Goal", Detail: "Own Goal"},
	}
	events[0].Time.Elapsed = 33

	mapped := mapEvents(events, teams)
	if len(mapped) != 1 {
		t.Fatalf("mapped %d events", len(mapped))
	}
	if mapped[0].TeamID != 127 {
		t.Errorf("own goal credited to %d, want home side 127", mapped[0].TeamID)
	}
}

func TestMapOdds(t *testing.T) {
	oddsJSON := `[{
		"fixture": {"id": 1180542},
		"bookmakers": [
			{
				"name": "Bet365",
				"bets": [
					{"name": "Goals Over/Under", "values": [
						{"value": "Over 1.5", "odd": "1.60"},
						{"value": "Under 1.5", "odd": "2.25"},
						{"value": "Over 2.5", "odd": "2.40"}
					]},
					{"name": "Both Teams Score", "values": [
						{"value": "Yes", "odd": "1.95"},
						{"value": "No", "odd": "1.80"}
					]},
					{"name": "Double Chance", "values": [
						{"value": "Home/Draw", "odd": "1.25"}
					]}
				]
			},
			{
				"name": "Pinnacle",
				"bets": [
					{"name": "Next Goal", "values": [
						{"value": "Home", "odd": "1.70"},
						{"value": "Away", "odd": "3.10"}
					]},
					{"name": "Goals Over/Under", "values": [
						{"value": "Over 1.5", "odd": "bad"}
					]}
				]
			}
		]
	}]`

	var entries []apiOddsEntry
	if err := json.Unmarshal([]byte(oddsJSON), &entries); err != nil {
		t.Fatalf("unmarshal odds: %v", err)
	}

	quotes := mapOdds(entries)

	want := map[string]float64{
		"Bet365/over_1_5/over":    1.60,
		"Bet365/over_2_5/over":    2.40,
		"Bet365/btts/yes":         1.95,
		"Pinnacle/next_goal/home": 1.70,
	}
	if len(quotes) != len(want) {
		t.Fatalf("got %d quotes, want %d: %+v", len(quotes), len(want), quotes)
	}
	for _, q := range quotes {
		key := q.Bookmaker + "/" + q.Market.String() + "/" + q.Outcome
		price, ok := want[key]
		if !ok {
			t.Errorf("unexpected quote %s", key)
			continue
		}
		if math.Abs(q.Price-price) > 1e-9 {
			t.Errorf("%s price = %v, want %v", key, q.Price, price)
		}
	}
}

func TestEnvelopeErr(t *testing.T) {
	tests := []struct {
		name    string
		errors  string
		wantNil bool
		wantRL  bool
	}{
		{name: "empty array", errors: `[]`, wantNil: true},
		{name: "null", errors: `null`, wantNil: true},
		{name: "quota exhausted", errors: `{"requests": "You have reached the request limit for the day"}`, wantRL: true},
		{name: "bad parameter", errors: `{"fixture": "The fixture field must be a number"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := apiEnvelope{Errors: json.RawMessage(tt.errors)}
			err := env.err()

			if tt.wantNil {
				if err != nil {
					t.Fatalf("err() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("err() = nil, want error")
			}
			if got := errors.Is(err, domain.ErrRateLimited); got != tt.wantRL {
				t.Errorf("errors.Is(err, ErrRateLimited) = %v, want %v", got, tt.wantRL)
			}
		})
	}
}
