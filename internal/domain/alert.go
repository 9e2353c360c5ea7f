package domain

import "time"

// AlertOutcome is the settled result of a sent alert.
type AlertOutcome string

const (
	AlertPending AlertOutcome = "pending"
	AlertWon     AlertOutcome = "won"
	AlertLost    AlertOutcome = "lost"
	AlertVoid    AlertOutcome = "void" // could not be resolved from final data
)

// Alert is the persisted record of an opportunity sent to a tier.
// Minute and Score capture the match state at send time; the settler
// needs them to resolve time-windowed markets.
type Alert struct {
	ID            string
	FixtureID     int64
	Market        Market
	Tier          Tier
	Probability   float64
	Confidence    float64
	ExpectedValue float64
	Price         float64
	Minute        int
	Score         Score
	Outcome       AlertOutcome
	SentAt        time.Time
	SettledAt     *time.Time
}

// MatchResult is a finished fixture's final line, kept for head-to-head
// history and strength ratings.
type MatchResult struct {
	FixtureID int64
	HomeID    int64
	AwayID    int64
	HomeGoals int
	AwayGoals int
	PlayedAt  time.Time
}

// HeadToHead aggregates the most recent meetings between two teams.
type HeadToHead struct {
	Matches   int
	AvgGoals  float64
	BTTSCount int
}

// Subscriber is a user receiving alerts on a tier.
type Subscriber struct {
	UserID    int64 // telegram chat id
	Tier      Tier
	Active    bool
	CreatedAt time.Time
}
