// Package message renders alert texts for Telegram delivery. Rendering
// is pure: the same opportunity always produces the same string, so
// messages can be regenerated for retries without drift.
package message

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oddsight/oddsight/internal/domain"
)

// PreAlert is the short heads-up sent to every tier the moment an
// opportunity is confirmed.
func PreAlert(opp *domain.Opportunity) string {
	var b strings.Builder
	b.WriteString("🔔 *Golden moment forming*\n")
	fmt.Fprintf(&b, "%s vs %s (%s)\n",
		escapeMarkdown(opp.HomeTeam), escapeMarkdown(opp.AwayTeam), escapeMarkdown(opp.League))
	fmt.Fprintf(&b, "Market: %s\n", opp.Market.Label())
	b.WriteString("Full signal incoming.")
	return b.String()
}

// MainAlert is the tier's full signal. Free keeps it minimal; insider
// adds the numbers; estratega additionally sees the leading reasons.
func MainAlert(opp *domain.Opportunity, tier domain.Tier) string {
	var b strings.Builder
	b.WriteString("⚽️ *GOLDEN MOMENT*\n")
	fmt.Fprintf(&b, "%s %d-%d %s · %d'\n",
		escapeMarkdown(opp.HomeTeam), opp.Score.Home, opp.Score.Away,
		escapeMarkdown(opp.AwayTeam), opp.Minute)
	fmt.Fprintf(&b, "%s (%s)\n", opp.Market.Label(), escapeMarkdown(opp.League))
	fmt.Fprintf(&b, "Best price: %.2f at %s\n", opp.BestPrice, escapeMarkdown(opp.BestBookmaker))

	if tier == domain.TierInsider || tier == domain.TierEstratega {
		fmt.Fprintf(&b, "Probability: %.0f%%\n", opp.Probability*100)
		fmt.Fprintf(&b, "Expected value: %+.1f%%\n", opp.ExpectedValue*100)
	}
	if tier == domain.TierEstratega {
		fmt.Fprintf(&b, "Confidence: %.0f%%\n", opp.Confidence*100)
		for i, line := range opp.Context {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "• %s\n", escapeMarkdown(line))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// DetailedAnalysis is the estratega-only deep dive: every justification
// line and the full bookmaker board.
func DetailedAnalysis(opp *domain.Opportunity) string {
	var b strings.Builder
	b.WriteString("📊 *Analysis*\n")
	fmt.Fprintf(&b, "%s vs %s, minute %d, score %d-%d\n",
		escapeMarkdown(opp.HomeTeam), escapeMarkdown(opp.AwayTeam),
		opp.Minute, opp.Score.Home, opp.Score.Away)
	fmt.Fprintf(&b, "%s: probability %.0f%%, confidence %.0f%%, EV %+.1f%%\n",
		opp.Market.Label(), opp.Probability*100, opp.Confidence*100, opp.ExpectedValue*100)

	b.WriteString("\n*Why:*\n")
	for _, line := range opp.Context {
		fmt.Fprintf(&b, "• %s\n", escapeMarkdown(line))
	}

	if len(opp.Prices) > 0 {
		b.WriteString("\n*Prices:*\n")
		books := make([]string, 0, len(opp.Prices))
		for book := range opp.Prices {
			books = append(books, book)
		}
		sort.Strings(books)
		for _, book := range books {
			fmt.Fprintf(&b, "• %s: %.2f\n", escapeMarkdown(book), opp.Prices[book])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// escapeMarkdown neutralises Telegram Markdown control characters in
// provider-supplied names.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"`", "\\`",
		"[", "\\[",
	)
	return replacer.Replace(s)
}
