// Package sportsdata is the REST client for the live football data feed.
// All endpoints share one API-key header, one response envelope and one
// request budget, which the client spends through the distributed rate
// limiter so every process instance stays inside the plan's quota.
package sportsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
)

const (
	defaultBaseURL           = "https://v3.football.api-sports.io"
	defaultRequestsPerMinute = 30
	requestTimeout           = 30 * time.Second

	// rateLimitKey is shared across all endpoints; the quota is per key,
	// not per endpoint.
	rateLimitKey = "provider:requests"

	dateOnly = "2006-01-02"
)

// ClientConfig holds connection parameters for the data feed.
type ClientConfig struct {
	// BaseURL is the API root. Leave empty for the hosted feed.
	BaseURL string

	// APIKey authenticates every request.
	APIKey string

	// RequestsPerMinute caps outbound calls across all endpoints.
	RequestsPerMinute int
}

// Client implements domain.FixtureProvider.
type Client struct {
	baseURL    string
	apiKey     string
	rpm        int
	httpClient *http.Client
	limiter    domain.RateLimiter
	logger     *slog.Logger

	now func() time.Time
}

// NewClient creates a feed client. limiter may be nil, in which case
// requests go out unthrottled.
func NewClient(cfg ClientConfig, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRequestsPerMinute
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		rpm:     rpm,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "provider")),
		now:     time.Now,
	}
}

// LiveFixtures returns shallow snapshots of every fixture currently in play.
func (c *Client) LiveFixtures(ctx context.Context) ([]domain.FixtureSnapshot, error) {
	params := url.Values{}
	params.Set("live", "all")

	raw, err := c.doGet(ctx, "/fixtures", params)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: live fixtures: %w", err)
	}

	var entries []apiFixtureEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("sportsdata: decode live fixtures: %w", err)
	}

	retrievedAt := c.now().UTC()
	snaps := make([]domain.FixtureSnapshot, 0, len(entries))
	for i := range entries {
		snaps = append(snaps, entries[i].toSnapshot(retrievedAt))
	}
	return snaps, nil
}

// UpcomingFixtures returns fixtures scheduled to kick off within the window.
// The feed filters by calendar date only, so the window edge is applied here.
func (c *Client) UpcomingFixtures(ctx context.Context, window time.Duration) ([]domain.FixtureSnapshot, error) {
	now := c.now().UTC()
	until := now.Add(window)

	params := url.Values{}
	params.Set("from", now.Format(dateOnly))
	params.Set("to", until.Format(dateOnly))
	params.Set("status", string(domain.StatusScheduled))

	raw, err := c.doGet(ctx, "/fixtures", params)
	if err != nil {
		return nil, fmt.Errorf("sportsdata: upcoming fixtures: %w", err)
	}

	var entries []apiFixtureEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("sportsdata: decode upcoming fixtures: %w", err)
	}

	snaps := make([]domain.FixtureSnapshot, 0, len(entries))
	for i := range entries {
		snap := entries[i].toSnapshot(now)
		if snap.KickoffAt.Before(now) || snap.KickoffAt.After(until) {
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// FixtureByID returns the full state of one fixture: the by-ID endpoint
// embeds events and statistics, and a second call adds the live odds.
// A failed odds fetch degrades to a snapshot without quotes; the fixture
// state is still worth having and the detector skips unpriced markets.
func (c *Client) FixtureByID(ctx context.Context, fixtureID int64) (domain.FixtureSnapshot, error) {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(fixtureID, 10))

	raw, err := c.doGet(ctx, "/fixtures", params)
	if err != nil {
		return domain.FixtureSnapshot{}, fmt.Errorf("sportsdata: fixture %d: %w", fixtureID, err)
	}

	var entries []apiFixtureEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return domain.FixtureSnapshot{}, fmt.Errorf("sportsdata: decode fixture %d: %w", fixtureID, err)
	}
	if len(entries) == 0 {
		return domain.FixtureSnapshot{}, fmt.Errorf("sportsdata: fixture %d: %w", fixtureID, domain.ErrNotFound)
	}

	snap := entries[0].toSnapshot(c.now().UTC())

	odds, err := c.fetchOdds(ctx, fixtureID)
	if err != nil {
		c.logger.WarnContext(ctx, "odds fetch failed",
			slog.Int64("fixture_id", fixtureID),
			slog.String("error", err.Error()),
		)
	} else {
		snap.Odds = odds
	}

	return snap, nil
}

func (c *Client) fetchOdds(ctx context.Context, fixtureID int64) ([]domain.OddsQuote, error) {
	params := url.Values{}
	params.Set("fixture", strconv.FormatInt(fixtureID, 10))

	raw, err := c.doGet(ctx, "/odds", params)
	if err != nil {
		return nil, err
	}

	var entries []apiOddsEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode odds: %w", err)
	}

	return mapOdds(entries), nil
}

// doGet waits for request budget, sends an authenticated GET and returns
// the envelope's response payload.
func (c *Client) doGet(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.rpm, time.Minute); err != nil {
			return nil, fmt.Errorf("wait for request budget: %w", err)
		}
	}

	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apisports-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.err(); err != nil {
		return nil, err
	}

	return env.Response, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("authentication failed (HTTP %d): %s", statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// Compile-time interface check.
var _ domain.FixtureProvider = (*Client)(nil)
