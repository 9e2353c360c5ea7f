package selector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/oddsight/oddsight/internal/catalog"
	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/rules"
)

type fakeSource struct {
	live        []domain.FixtureSnapshot
	upcoming    []domain.FixtureSnapshot
	liveErr     error
	upcomingErr error
	gotWindow   time.Duration
}

func (f *fakeSource) LiveFixtures(ctx context.Context) ([]domain.FixtureSnapshot, error) {
	return f.live, f.liveErr
}

func (f *fakeSource) UpcomingFixtures(ctx context.Context, window time.Duration) ([]domain.FixtureSnapshot, error) {
	f.gotWindow = window
	return f.upcoming, f.upcomingErr
}

type fakeEstimator struct {
	potential float64
	err       error
}

func (f *fakeEstimator) PredictPotential(ctx context.Context, snap domain.FixtureSnapshot) (float64, error) {
	return f.potential, f.err
}

type fakeTeams struct {
	strengths map[int64]float64
	h2h       map[[2]int64]domain.HeadToHead
}

func (f *fakeTeams) TeamStrength(ctx context.Context, teamID int64) (float64, error) {
	s, ok := f.strengths[teamID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeTeams) HeadToHead(ctx context.Context, homeID, awayID int64) (domain.HeadToHead, error) {
	h, ok := f.h2h[[2]int64{homeID, awayID}]
	if !ok {
		return domain.HeadToHead{}, domain.ErrNotFound
	}
	return h, nil
}

func (f *fakeTeams) RecordResult(ctx context.Context, result domain.MatchResult) error {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Load("", "")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return c
}

func bigMatch(id int64) domain.FixtureSnapshot {
	return domain.FixtureSnapshot{
		FixtureID: id,
		League:    domain.League{Name: "Serie A", Country: "Brazil"},
		Home:      domain.Team{ID: 127, Name: "Flamengo"},
		Away:      domain.Team{ID: 121, Name: "Palmeiras"},
		Status:    domain.StatusSecondHalf,
		Elapsed:   60,
		Score:     domain.Score{Home: 1, Away: 1},
	}
}

func smallMatch(id int64) domain.FixtureSnapshot {
	return domain.FixtureSnapshot{
		FixtureID: id,
		League:    domain.League{Name: "Eliteserien", Country: "Norway"},
		Home:      domain.Team{ID: 900, Name: "Viking"},
		Away:      domain.Team{ID: 901, Name: "Molde"},
		Status:    domain.StatusScheduled,
		KickoffAt: time.Now().Add(time.Hour),
	}
}

func newSelector(t *testing.T, cfg Config, src FixtureSource, est PotentialEstimator, teams domain.TeamStatsStore) *Selector {
	t.Helper()
	if cfg.TierQuotas == nil {
		cfg.TierQuotas = map[domain.Tier]int{
			domain.TierFree: 5, domain.TierInsider: 10, domain.TierEstratega: 20,
		}
	}
	return New(cfg, src, est, rules.NewEngine(), mustCatalog(t), teams, testLogger())
}

func TestSelectRanksBigMatchesFirst(t *testing.T) {
	src := &fakeSource{
		live:     []domain.FixtureSnapshot{smallMatch(2), bigMatch(1)},
		upcoming: []domain.FixtureSnapshot{smallMatch(3)},
	}
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4, LookAhead: 2 * time.Hour},
		src, &fakeEstimator{potential: 0.5}, &fakeTeams{})

	got, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatalf("SelectForMonitoring: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d fixtures, want 3", len(got))
	}
	if got[0].Snapshot.FixtureID != 1 {
		t.Errorf("top fixture = %d, want the big live match", got[0].Snapshot.FixtureID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("ranking not descending at %d: %v > %v", i, got[i].Score, got[i-1].Score)
		}
	}
	if src.gotWindow != 2*time.Hour {
		t.Errorf("look-ahead window = %v, want 2h", src.gotWindow)
	}
}

func TestSelectQuotaTruncates(t *testing.T) {
	src := &fakeSource{live: []domain.FixtureSnapshot{bigMatch(1), bigMatch(2), bigMatch(3)}}
	s := newSelector(t, Config{
		RelevanceWeight: 0.6,
		PotentialWeight: 0.4,
		TierQuotas:      map[domain.Tier]int{domain.TierFree: 2},
	}, src, &fakeEstimator{potential: 0.5}, &fakeTeams{})

	got, err := s.SelectForMonitoring(context.Background(), domain.TierFree)
	if err != nil {
		t.Fatalf("SelectForMonitoring: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d fixtures, want quota 2", len(got))
	}
}

func TestSelectTieBreakByFixtureID(t *testing.T) {
	src := &fakeSource{live: []domain.FixtureSnapshot{bigMatch(7), bigMatch(3)}}
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4},
		src, &fakeEstimator{potential: 0.5}, &fakeTeams{})

	got, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatalf("SelectForMonitoring: %v", err)
	}
	if got[0].Snapshot.FixtureID != 3 || got[1].Snapshot.FixtureID != 7 {
		t.Errorf("tie-break order = [%d, %d], want [3, 7]",
			got[0].Snapshot.FixtureID, got[1].Snapshot.FixtureID)
	}
}

func TestSelectWeightRenormalisation(t *testing.T) {
	src1 := &fakeSource{live: []domain.FixtureSnapshot{bigMatch(1)}}
	src2 := &fakeSource{live: []domain.FixtureSnapshot{bigMatch(1)}}
	scaled := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.6},
		src1, &fakeEstimator{potential: 0.5}, &fakeTeams{})
	normal := newSelector(t, Config{RelevanceWeight: 0.5, PotentialWeight: 0.5},
		src2, &fakeEstimator{potential: 0.5}, &fakeTeams{})

	a, err := scaled.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatal(err)
	}
	b, err := normal.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(a[0].Score-b[0].Score) > 1e-9 {
		t.Errorf("renormalised score %v differs from equivalent weights %v", a[0].Score, b[0].Score)
	}
}

func TestSelectDegradesWhenOneSourceFails(t *testing.T) {
	src := &fakeSource{
		liveErr:  errors.New("api down"),
		upcoming: []domain.FixtureSnapshot{bigMatch(1)},
	}
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4},
		src, &fakeEstimator{potential: 0.5}, &fakeTeams{})

	got, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatalf("SelectForMonitoring returned error %v, want upcoming-only degradation", err)
	}
	if len(got) != 1 || got[0].Snapshot.FixtureID != 1 {
		t.Errorf("got %v, want the upcoming fixture", got)
	}
}

func TestSelectErrorsWhenEverySourceFails(t *testing.T) {
	liveErr := errors.New("provider down")
	src := &fakeSource{liveErr: liveErr, upcomingErr: errors.New("postgres down")}
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4},
		src, &fakeEstimator{potential: 0.5}, &fakeTeams{})

	// A total outage must surface as an error so the monitoring loop
	// keeps its working set instead of treating it as an empty schedule.
	_, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err == nil {
		t.Fatal("SelectForMonitoring error = nil, want failure with every source down")
	}
	if !errors.Is(err, liveErr) {
		t.Errorf("error %v does not wrap the source failure", err)
	}
}

func TestSelectEmptyScheduleIsNotAnError(t *testing.T) {
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4},
		&fakeSource{}, &fakeEstimator{potential: 0.5}, &fakeTeams{})

	got, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatalf("SelectForMonitoring returned error %v for an empty schedule", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d fixtures, want 0", len(got))
	}
}

func TestSelectMergePrefersLiveSnapshot(t *testing.T) {
	liveSnap := bigMatch(1)
	upcomingSnap := bigMatch(1)
	upcomingSnap.Status = domain.StatusScheduled
	src := &fakeSource{
		live:     []domain.FixtureSnapshot{liveSnap},
		upcoming: []domain.FixtureSnapshot{upcomingSnap},
	}
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4},
		src, &fakeEstimator{potential: 0.5}, &fakeTeams{})

	got, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d fixtures, want deduplicated 1", len(got))
	}
	if !got[0].Snapshot.Live() {
		t.Error("merge kept the upcoming snapshot over the live one")
	}
}

func TestPotentialUsesEstimator(t *testing.T) {
	src := &fakeSource{live: []domain.FixtureSnapshot{bigMatch(1)}}
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4},
		src, &fakeEstimator{potential: 0.9}, &fakeTeams{})

	got, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got[0].Potential-9.0) > 1e-9 {
		t.Errorf("potential = %v, want estimator value scaled to 9.0", got[0].Potential)
	}
}

func TestPotentialFallbackUsesHistory(t *testing.T) {
	snap := bigMatch(1)
	teams := &fakeTeams{
		strengths: map[int64]float64{127: 8.0, 121: 8.0},
		h2h: map[[2]int64]domain.HeadToHead{
			{127, 121}: {Matches: 10, AvgGoals: 3.7, BTTSCount: 7},
		},
	}
	src := &fakeSource{live: []domain.FixtureSnapshot{snap}}
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4},
		src, &fakeEstimator{err: domain.ErrNoModel}, teams)

	got, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatal(err)
	}

	// live (0.3) + phase (0.2) + level score (0.2) scaled by 6, plus
	// perfect parity (2.0) and high-volatility head-to-head (2.0)
	want := 0.7*6 + 2.0 + 2.0
	if math.Abs(got[0].Potential-want) > 1e-9 {
		t.Errorf("fallback potential = %v, want %v", got[0].Potential, want)
	}
}

func TestPotentialFallbackNeutralWithoutHistory(t *testing.T) {
	src := &fakeSource{live: []domain.FixtureSnapshot{smallMatch(5)}}
	s := newSelector(t, Config{RelevanceWeight: 0.6, PotentialWeight: 0.4},
		src, &fakeEstimator{err: domain.ErrNoModel}, &fakeTeams{})

	got, err := s.SelectForMonitoring(context.Background(), domain.TierEstratega)
	if err != nil {
		t.Fatal(err)
	}
	// scheduled fixture: closeness only (0.2*6), neutral parity 1.0,
	// neutral volatility 0.75
	want := 0.2*6 + 1.0 + 0.75
	if math.Abs(got[0].Potential-want) > 1e-9 {
		t.Errorf("fallback potential = %v, want %v", got[0].Potential, want)
	}
}
