package domain

import "fmt"

// Market is one of the betting markets the detector evaluates.
type Market int

const (
	MarketNextGoal Market = iota
	MarketOver05
	MarketOver15
	MarketOver25
	MarketBTTS
	MarketCornerNext10
)

// AllMarkets lists every supported market in canonical order. Ranking
// ties fall back to this order, so it must stay stable.
var AllMarkets = []Market{
	MarketNextGoal,
	MarketOver05,
	MarketOver15,
	MarketOver25,
	MarketBTTS,
	MarketCornerNext10,
}

func (m Market) String() string {
	switch m {
	case MarketNextGoal:
		return "next_goal"
	case MarketOver05:
		return "over_0_5"
	case MarketOver15:
		return "over_1_5"
	case MarketOver25:
		return "over_2_5"
	case MarketBTTS:
		return "btts"
	case MarketCornerNext10:
		return "corner_next_10m"
	default:
		return fmt.Sprintf("market(%d)", int(m))
	}
}

// Label returns a human-readable market name for alert messages.
func (m Market) Label() string {
	switch m {
	case MarketNextGoal:
		return "Next Goal"
	case MarketOver05:
		return "Over 0.5 Goals"
	case MarketOver15:
		return "Over 1.5 Goals"
	case MarketOver25:
		return "Over 2.5 Goals"
	case MarketBTTS:
		return "Both Teams To Score"
	case MarketCornerNext10:
		return "Corner in Next 10 Minutes"
	default:
		return m.String()
	}
}

// Outcome returns the canonical priced outcome for the market: the side
// of the market a prediction's probability refers to.
func (m Market) Outcome() string {
	switch m {
	case MarketNextGoal:
		return "home"
	case MarketOver05, MarketOver15, MarketOver25:
		return "over"
	case MarketBTTS, MarketCornerNext10:
		return "yes"
	default:
		return ""
	}
}

// GoalLine returns the over/under line for goal-total markets.
func (m Market) GoalLine() (float64, bool) {
	switch m {
	case MarketOver05:
		return 0.5, true
	case MarketOver15:
		return 1.5, true
	case MarketOver25:
		return 2.5, true
	}
	return 0, false
}

// ParseMarket converts the string form back to a Market.
func ParseMarket(s string) (Market, error) {
	for _, m := range AllMarkets {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown market %q", s)
}

func (m Market) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Market) UnmarshalText(b []byte) error {
	parsed, err := ParseMarket(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Tier is a subscription level. Lower tiers see fewer, higher-confidence
// alerts; AllTiers runs from the strictest confidence gate to the loosest.
type Tier int

const (
	TierFree Tier = iota
	TierInsider
	TierEstratega
)

// AllTiers lists tiers from most to least exclusive.
var AllTiers = []Tier{TierFree, TierInsider, TierEstratega}

func (t Tier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierInsider:
		return "insider"
	case TierEstratega:
		return "estratega"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier converts the string form back to a Tier.
func ParseTier(s string) (Tier, error) {
	for _, t := range AllTiers {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
