package domain

import "time"

// FixtureStatus is the provider's short status code for a fixture.
type FixtureStatus string

const (
	StatusScheduled  FixtureStatus = "NS"
	StatusFirstHalf  FixtureStatus = "1H"
	StatusHalftime   FixtureStatus = "HT"
	StatusSecondHalf FixtureStatus = "2H"
	StatusExtraTime  FixtureStatus = "ET"
	StatusPenalties  FixtureStatus = "P"
	StatusFinished   FixtureStatus = "FT"
	StatusFinishedET FixtureStatus = "AET"
	StatusFinishedPn FixtureStatus = "PEN"
	StatusPostponed  FixtureStatus = "PST"
	StatusCancelled  FixtureStatus = "CANC"
	StatusAbandoned  FixtureStatus = "ABD"
)

// Live reports whether the fixture is currently being played.
// Halftime counts as live: the match state still moves and odds stay up.
func (s FixtureStatus) Live() bool {
	switch s {
	case StatusFirstHalf, StatusHalftime, StatusSecondHalf, StatusExtraTime, StatusPenalties:
		return true
	}
	return false
}

// Finished reports whether the fixture reached a final result.
func (s FixtureStatus) Finished() bool {
	switch s {
	case StatusFinished, StatusFinishedET, StatusFinishedPn:
		return true
	}
	return false
}

// League identifies the competition a fixture belongs to.
type League struct {
	ID      int64
	Name    string
	Country string
}

// Team identifies one side of a fixture.
type Team struct {
	ID   int64
	Name string
}

// Score is the current goal count.
type Score struct {
	Home int
	Away int
}

// Total returns the combined goal count.
func (s Score) Total() int { return s.Home + s.Away }

// Diff returns home goals minus away goals.
func (s Score) Diff() int { return s.Home - s.Away }

// TeamStats holds live in-match statistics for one side.
type TeamStats struct {
	Possession    float64 // percent; 0 means the provider has not reported it
	ShotsOnTarget int
	ShotsTotal    int
	Corners       int
	YellowCards   int
	RedCards      int
}

// EventType classifies a match event.
type EventType string

const (
	EventGoal         EventType = "goal"
	EventCard         EventType = "card"
	EventSubstitution EventType = "subst"
	EventVAR          EventType = "var"
)

// MatchEvent is a single timeline entry for a fixture.
type MatchEvent struct {
	Minute int
	TeamID int64
	Type   EventType
	Detail string // e.g. "Normal Goal", "Yellow Card"
}

// OddsQuote is one bookmaker's decimal price for a market outcome.
type OddsQuote struct {
	Bookmaker string
	Market    Market
	Outcome   string // canonical outcome name, see Market.Outcome
	Price     float64
}

// FixtureSnapshot is the full observed state of a fixture at one moment:
// identity, score, per-team statistics, event timeline and live odds.
// Statistics pointers are nil when the provider has no data yet.
type FixtureSnapshot struct {
	FixtureID   int64
	League      League
	Home        Team
	Away        Team
	KickoffAt   time.Time
	Status      FixtureStatus
	Elapsed     int // minutes played; 0 before kickoff
	Score       Score
	HomeStats   *TeamStats
	AwayStats   *TeamStats
	Events      []MatchEvent
	Odds        []OddsQuote
	RetrievedAt time.Time
}

// Live reports whether the snapshot was taken during play.
func (f FixtureSnapshot) Live() bool { return f.Status.Live() }

// Finished reports whether the fixture has a final result.
func (f FixtureSnapshot) Finished() bool { return f.Status.Finished() }
