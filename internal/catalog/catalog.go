// Package catalog serves the static reference data behind fixture
// scoring: league and team popularity tables and per-market historical
// base rates. Defaults are embedded; both files can be overridden from
// disk for regional deployments.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oddsight/oddsight/internal/domain"
)

//go:embed data/popularity.yaml
var defaultPopularity []byte

//go:embed data/priors.yaml
var defaultPriors []byte

type leagueEntry struct {
	Name    string  `yaml:"name"`
	Country string  `yaml:"country"`
	Score   float64 `yaml:"score"`
}

type teamEntry struct {
	Name  string  `yaml:"name"`
	Score float64 `yaml:"score"`
}

type popularityFile struct {
	HomeCountry      string        `yaml:"home_country"`
	HomeCountryFloor float64       `yaml:"home_country_floor"`
	Leagues          []leagueEntry `yaml:"leagues"`
	Teams            []teamEntry   `yaml:"teams"`
}

type priorEntry struct {
	BaseRate float64 `yaml:"base_rate"`
}

type priorsFile struct {
	Markets map[string]priorEntry `yaml:"markets"`
}

// Catalog resolves popularity scores on a 0-10 scale and per-market
// base rates on [0,1].
type Catalog struct {
	homeCountry      string
	homeCountryFloor float64
	leagues          []leagueEntry
	teams            []teamEntry
	priors           map[domain.Market]float64
}

// Load builds a catalog from the given YAML files. An empty path falls
// back to the embedded default for that file.
func Load(popularityPath, priorsPath string) (*Catalog, error) {
	popRaw := defaultPopularity
	if popularityPath != "" {
		b, err := os.ReadFile(popularityPath)
		if err != nil {
			return nil, fmt.Errorf("catalog: read popularity: %w", err)
		}
		popRaw = b
	}
	priorsRaw := defaultPriors
	if priorsPath != "" {
		b, err := os.ReadFile(priorsPath)
		if err != nil {
			return nil, fmt.Errorf("catalog: read priors: %w", err)
		}
		priorsRaw = b
	}

	var pop popularityFile
	if err := yaml.Unmarshal(popRaw, &pop); err != nil {
		return nil, fmt.Errorf("catalog: parse popularity: %w", err)
	}
	var pri priorsFile
	if err := yaml.Unmarshal(priorsRaw, &pri); err != nil {
		return nil, fmt.Errorf("catalog: parse priors: %w", err)
	}

	c := &Catalog{
		homeCountry:      pop.HomeCountry,
		homeCountryFloor: pop.HomeCountryFloor,
		leagues:          pop.Leagues,
		teams:            pop.Teams,
		priors:           make(map[domain.Market]float64, len(pri.Markets)),
	}
	for name, entry := range pri.Markets {
		m, err := domain.ParseMarket(name)
		if err != nil {
			return nil, fmt.Errorf("catalog: priors: %w", err)
		}
		if entry.BaseRate <= 0 || entry.BaseRate >= 1 {
			return nil, fmt.Errorf("catalog: priors: base rate for %s out of range: %v", m, entry.BaseRate)
		}
		c.priors[m] = entry.BaseRate
	}
	for _, m := range domain.AllMarkets {
		if _, ok := c.priors[m]; !ok {
			return nil, fmt.Errorf("catalog: priors: missing market %s", m)
		}
	}
	return c, nil
}

// LeaguePopularity scores a league 0-10. Lookup order: exact name and
// country match, exact name match, then substring match either way.
// Leagues from the home country never score below the configured floor.
func (c *Catalog) LeaguePopularity(name, country string) float64 {
	query := normalize(name)
	score := 0.0
	for _, l := range c.leagues {
		candidate := normalize(l.Name)
		if candidate == query && strings.EqualFold(l.Country, country) {
			score = l.Score
			break
		}
		if (candidate == query || substringMatch(candidate, query)) && l.Score > score {
			score = l.Score
		}
	}
	if strings.EqualFold(country, c.homeCountry) && score < c.homeCountryFloor {
		score = c.homeCountryFloor
	}
	return score
}

// TeamPopularity scores a team 0-10; unknown teams score 0.
func (c *Catalog) TeamPopularity(name string) float64 {
	query := normalize(name)
	score := 0.0
	for _, t := range c.teams {
		candidate := normalize(t.Name)
		if candidate == query {
			return t.Score
		}
		if substringMatch(candidate, query) && score < t.Score {
			score = t.Score
		}
	}
	return score
}

// BaseRate returns the historical base rate for a market's canonical
// outcome. Load guarantees a rate exists for every market.
func (c *Catalog) BaseRate(m domain.Market) float64 {
	return c.priors[m]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func substringMatch(candidate, query string) bool {
	if candidate == "" || query == "" {
		return false
	}
	return strings.Contains(candidate, query) || strings.Contains(query, candidate)
}
