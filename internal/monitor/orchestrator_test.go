package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
)

type fakeSelector struct {
	mu     sync.Mutex
	scored []domain.ScoredFixture
	err    error
	calls  int
	tier   domain.Tier
}

func (f *fakeSelector) SelectForMonitoring(_ context.Context, tier domain.Tier) ([]domain.ScoredFixture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tier = tier
	return f.scored, f.err
}

type detectCall struct {
	fixtureID int64
	tier      domain.Tier
}

type fakeDetector struct {
	mu    sync.Mutex
	opps  map[int64]map[domain.Tier]*domain.Opportunity
	err   error
	calls []detectCall
}

func (f *fakeDetector) Detect(_ context.Context, fixtureID int64, tier domain.Tier) (*domain.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, detectCall{fixtureID: fixtureID, tier: tier})
	if f.err != nil {
		return nil, f.err
	}
	return f.opps[fixtureID][tier], nil
}

func (f *fakeDetector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAlerter struct {
	mu         sync.Mutex
	dispatched []domain.Opportunity
	cancelled  []int64
}

func (f *fakeAlerter) Dispatch(_ context.Context, opp domain.Opportunity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, opp)
}

func (f *fakeAlerter) CancelFixture(fixtureID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, fixtureID)
}

func (f *fakeAlerter) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

type fakeAlertStats struct {
	sent int64
	rate float64
}

func (f *fakeAlertStats) CountSentSince(context.Context, time.Time) (int64, error) {
	return f.sent, nil
}

func (f *fakeAlertStats) SuccessRate(context.Context, time.Time) (float64, error) {
	return f.rate, nil
}

type fakeStates struct {
	mu    sync.Mutex
	snaps map[int64]domain.FixtureSnapshot
	err   error
	calls int
}

func (f *fakeStates) Snapshot(_ context.Context, fixtureID int64) (domain.FixtureSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.FixtureSnapshot{}, f.err
	}
	snap, ok := f.snaps[fixtureID]
	if !ok {
		return domain.FixtureSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (f *fakeStates) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type markCall struct {
	fixtureID int64
	monitored bool
}

type fakeWatchlist struct {
	mu    sync.Mutex
	err   error
	marks []markCall
}

func (f *fakeWatchlist) MarkMonitored(_ context.Context, fixtureID int64, monitored bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, markCall{fixtureID: fixtureID, monitored: monitored})
	return f.err
}

type fakeLocks struct {
	err      error
	acquired int
}

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() {}, nil
}

func scoredFixture(id int64, score float64, status domain.FixtureStatus) domain.ScoredFixture {
	return domain.ScoredFixture{
		Snapshot: domain.FixtureSnapshot{
			FixtureID: id,
			League:    domain.League{ID: 71, Name: "Serie A", Country: "Brazil"},
			Home:      domain.Team{ID: 1, Name: "Flamengo"},
			Away:      domain.Team{ID: 2, Name: "Palmeiras"},
			Status:    status,
			Elapsed:   60,
		},
		Score: score,
	}
}

func testOpportunity(fixtureID int64, market domain.Market, tier domain.Tier) *domain.Opportunity {
	return &domain.Opportunity{
		ID:            "opp-1",
		FixtureID:     fixtureID,
		Market:        market,
		Tier:          tier,
		Probability:   0.7,
		Confidence:    0.8,
		ExpectedValue: 0.19,
		BestPrice:     1.7,
	}
}

func newTestOrchestrator(sel *fakeSelector, det *fakeDetector, al *fakeAlerter) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{ScanInterval: 5 * time.Minute, Cooldown: 15 * time.Minute, MaxParallel: 4}
	return NewOrchestrator(sel, det, al, &fakeAlertStats{}, nil, nil, nil, cfg, logger)
}

func TestRunCycleSelectsAtWidestTier(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 8.0, domain.StatusSecondHalf)}}
	det := &fakeDetector{}
	o := newTestOrchestrator(sel, det, &fakeAlerter{})

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if sel.calls != 1 {
		t.Fatalf("selector called %d times, want 1", sel.calls)
	}
	if sel.tier != domain.TierEstratega {
		t.Errorf("selected at tier %v, want %v", sel.tier, domain.TierEstratega)
	}
}

func TestRunCycleChecksEveryTierWidestFirst(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 9.5, domain.StatusSecondHalf)}}
	det := &fakeDetector{
		opps: map[int64]map[domain.Tier]*domain.Opportunity{
			10: {domain.TierEstratega: testOpportunity(10, domain.MarketNextGoal, domain.TierEstratega)},
		},
	}
	al := &fakeAlerter{}
	o := newTestOrchestrator(sel, det, al)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	want := []detectCall{
		{fixtureID: 10, tier: domain.TierEstratega},
		{fixtureID: 10, tier: domain.TierInsider},
		{fixtureID: 10, tier: domain.TierFree},
	}
	if len(det.calls) != len(want) {
		t.Fatalf("detector calls = %v, want %v", det.calls, want)
	}
	for i, c := range det.calls {
		if c != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, c, want[i])
		}
	}
	if al.dispatchCount() != 1 {
		t.Errorf("dispatched %d opportunities, want 1", al.dispatchCount())
	}
}

func TestCooldownSuppressesRepeatAlerts(t *testing.T) {
	base := time.Date(2025, 10, 4, 20, 0, 0, 0, time.UTC)
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 9.5, domain.StatusSecondHalf)}}
	det := &fakeDetector{
		opps: map[int64]map[domain.Tier]*domain.Opportunity{
			10: {domain.TierEstratega: testOpportunity(10, domain.MarketNextGoal, domain.TierEstratega)},
		},
	}
	al := &fakeAlerter{}
	o := newTestOrchestrator(sel, det, al)

	o.now = func() time.Time { return base }
	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}
	if al.dispatchCount() != 1 {
		t.Fatalf("dispatched %d after first cycle, want 1", al.dispatchCount())
	}

	// One minute later the fixture is due again (priority 9.5 re-checks
	// every 30s) but the 15 minute cooldown must hold the alert back.
	o.now = func() time.Time { return base.Add(time.Minute) }
	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if al.dispatchCount() != 1 {
		t.Fatalf("dispatched %d within cooldown, want still 1", al.dispatchCount())
	}

	o.now = func() time.Time { return base.Add(16 * time.Minute) }
	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("third RunCycle() error = %v", err)
	}
	if al.dispatchCount() != 2 {
		t.Errorf("dispatched %d after cooldown elapsed, want 2", al.dispatchCount())
	}
}

func TestAdaptiveIntervalGuard(t *testing.T) {
	base := time.Date(2025, 10, 4, 20, 0, 0, 0, time.UTC)
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 5.5, domain.StatusSecondHalf)}}
	det := &fakeDetector{}
	o := newTestOrchestrator(sel, det, &fakeAlerter{})

	o.now = func() time.Time { return base }
	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	first := det.callCount()
	if first != 3 {
		t.Fatalf("detector calls after first cycle = %d, want 3", first)
	}

	// Priority 5.5 re-checks every 2 minutes; 30 seconds in, nothing is due.
	o.now = func() time.Time { return base.Add(30 * time.Second) }
	o.checkDue(context.Background())
	if det.callCount() != first {
		t.Errorf("detector calls after early sweep = %d, want %d", det.callCount(), first)
	}

	o.now = func() time.Time { return base.Add(2 * time.Minute) }
	o.checkDue(context.Background())
	if det.callCount() != first*2 {
		t.Errorf("detector calls after due sweep = %d, want %d", det.callCount(), first*2)
	}
}

func TestCheckIntervalScalesWithPriority(t *testing.T) {
	tests := []struct {
		score float64
		want  time.Duration
	}{
		{9.4, 30 * time.Second},
		{9.0, 30 * time.Second},
		{7.2, time.Minute},
		{5.0, 2 * time.Minute},
		{3.1, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := checkInterval(tt.score); got != tt.want {
			t.Errorf("checkInterval(%.1f) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestRefreshDropsUnselectedScheduledFixture(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 4.0, domain.StatusScheduled)}}
	det := &fakeDetector{}
	al := &fakeAlerter{}
	o := newTestOrchestrator(sel, det, al)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(o.entries) != 1 {
		t.Fatalf("entries = %d after first cycle, want 1", len(o.entries))
	}

	sel.scored = nil
	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(o.entries) != 0 {
		t.Fatalf("entries = %d after fixture dropped, want 0", len(o.entries))
	}
	if len(al.cancelled) != 1 || al.cancelled[0] != 10 {
		t.Errorf("cancelled fixtures = %v, want [10]", al.cancelled)
	}
}

func TestRefreshKeepsUnselectedFixtureWhileStillLive(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 8.0, domain.StatusSecondHalf)}}
	al := &fakeAlerter{}
	o := newTestOrchestrator(sel, &fakeDetector{}, al)
	st := &fakeStates{snaps: map[int64]domain.FixtureSnapshot{
		10: scoredFixture(10, 8.0, domain.StatusSecondHalf).Snapshot,
	}}
	o.states = st

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	// Quota pressure can push a live fixture out of selection for many
	// refreshes; as long as its stored state says it is in play, the
	// entry stays watched.
	sel.scored = nil
	for i := 1; i <= liveMissLimit+2; i++ {
		if err := o.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle() #%d error = %v", i+1, err)
		}
		if len(o.entries) != 1 {
			t.Fatalf("entries = %d after %d misses, want 1 while still live", len(o.entries), i)
		}
	}
	if len(al.cancelled) != 0 {
		t.Errorf("cancelled fixtures = %v, want none while still live", al.cancelled)
	}
	if st.callCount() == 0 {
		t.Error("stored state never consulted for the unselected live fixture")
	}
}

func TestRefreshReapsUnselectedFixtureOncePlayEnds(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 8.0, domain.StatusSecondHalf)}}
	al := &fakeAlerter{}
	o := newTestOrchestrator(sel, &fakeDetector{}, al)
	st := &fakeStates{snaps: map[int64]domain.FixtureSnapshot{
		10: scoredFixture(10, 8.0, domain.StatusFinished).Snapshot,
	}}
	o.states = st

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	// The last-seen live flag survives two refreshes without a state
	// check; on the third the final status is read and the entry leaves.
	sel.scored = nil
	for i := 1; i <= liveMissLimit; i++ {
		if err := o.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle() #%d error = %v", i+1, err)
		}
		if i < liveMissLimit {
			if len(o.entries) != 1 {
				t.Fatalf("entries = %d after %d misses, want 1", len(o.entries), i)
			}
			if st.callCount() != 0 {
				t.Fatalf("state consulted %d times inside the grace period, want 0", st.callCount())
			}
		}
	}
	if len(o.entries) != 0 {
		t.Errorf("entries = %d after play ended, want 0", len(o.entries))
	}
	if len(al.cancelled) != 1 || al.cancelled[0] != 10 {
		t.Errorf("cancelled fixtures = %v, want [10]", al.cancelled)
	}
}

func TestRefreshKeepsLiveFixtureWhenStateUnreadable(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 8.0, domain.StatusSecondHalf)}}
	al := &fakeAlerter{}
	o := newTestOrchestrator(sel, &fakeDetector{}, al)
	o.states = &fakeStates{err: errors.New("postgres down")}

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	sel.scored = nil
	for i := 1; i <= liveMissLimit+1; i++ {
		if err := o.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle() #%d error = %v", i+1, err)
		}
	}
	if len(o.entries) != 1 {
		t.Errorf("entries = %d with state unreadable, want 1", len(o.entries))
	}
}

func TestRefreshWithoutStateSourceReapsAfterGrace(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 8.0, domain.StatusSecondHalf)}}
	al := &fakeAlerter{}
	o := newTestOrchestrator(sel, &fakeDetector{}, al)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	sel.scored = nil
	for i := 1; i <= liveMissLimit; i++ {
		if err := o.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle() #%d error = %v", i+1, err)
		}
		if i < liveMissLimit && len(o.entries) != 1 {
			t.Fatalf("entries = %d after %d misses, want 1", len(o.entries), i)
		}
	}
	if len(o.entries) != 0 {
		t.Errorf("entries = %d after %d misses, want 0", len(o.entries), liveMissLimit)
	}
	if len(al.cancelled) != 1 || al.cancelled[0] != 10 {
		t.Errorf("cancelled fixtures = %v, want [10]", al.cancelled)
	}
}

func TestRefreshMirrorsWatchlistIntoStore(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 4.0, domain.StatusScheduled)}}
	wl := &fakeWatchlist{}
	o := newTestOrchestrator(sel, &fakeDetector{}, &fakeAlerter{})
	o.watchlist = wl

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	want := []markCall{{fixtureID: 10, monitored: true}}
	if len(wl.marks) != 1 || wl.marks[0] != want[0] {
		t.Fatalf("marks after first cycle = %v, want %v", wl.marks, want)
	}

	sel.scored = nil
	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	want = append(want, markCall{fixtureID: 10, monitored: false})
	if len(wl.marks) != len(want) {
		t.Fatalf("marks after drop = %v, want %v", wl.marks, want)
	}
	for i, m := range wl.marks {
		if m != want[i] {
			t.Errorf("mark %d = %+v, want %+v", i, m, want[i])
		}
	}
}

func TestWatchlistFailureDoesNotFailCycle(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 8.0, domain.StatusSecondHalf)}}
	o := newTestOrchestrator(sel, &fakeDetector{}, &fakeAlerter{})
	o.watchlist = &fakeWatchlist{err: errors.New("postgres down")}

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v, want nil (marking is best effort)", err)
	}
}

func TestRunCycleSkipsWhileRunning(t *testing.T) {
	sel := &fakeSelector{}
	o := newTestOrchestrator(sel, &fakeDetector{}, &fakeAlerter{})

	o.inCycle.Store(true)
	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() while busy error = %v", err)
	}
	if sel.calls != 0 {
		t.Fatalf("selector called %d times during a skipped cycle, want 0", sel.calls)
	}

	o.inCycle.Store(false)
	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if sel.calls != 1 {
		t.Errorf("selector called %d times, want 1", sel.calls)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	sel := &fakeSelector{}
	o := newTestOrchestrator(sel, &fakeDetector{}, &fakeAlerter{})
	o.locks = &fakeLocks{err: domain.ErrLockHeld}

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() with held lock error = %v, want nil", err)
	}
	if sel.calls != 0 {
		t.Errorf("selector called %d times with lock held elsewhere, want 0", sel.calls)
	}
}

func TestRunCycleLockErrorPropagates(t *testing.T) {
	o := newTestOrchestrator(&fakeSelector{}, &fakeDetector{}, &fakeAlerter{})
	o.locks = &fakeLocks{err: errors.New("redis down")}

	if err := o.RunCycle(context.Background()); err == nil {
		t.Fatal("RunCycle() error = nil, want lock acquisition failure")
	}
}

func TestDetectorErrorStopsRemainingTiers(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 9.5, domain.StatusSecondHalf)}}
	det := &fakeDetector{err: errors.New("snapshot unavailable")}
	al := &fakeAlerter{}
	o := newTestOrchestrator(sel, det, al)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if det.callCount() != 1 {
		t.Errorf("detector calls = %d, want 1 (remaining tiers skipped)", det.callCount())
	}
	if al.dispatchCount() != 0 {
		t.Errorf("dispatched %d opportunities on detector failure, want 0", al.dispatchCount())
	}
}

func TestSelectorErrorKeepsWorkingSet(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{scoredFixture(10, 8.0, domain.StatusSecondHalf)}}
	o := newTestOrchestrator(sel, &fakeDetector{}, &fakeAlerter{})

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	sel.err = errors.New("provider down")
	if err := o.RunCycle(context.Background()); err == nil {
		t.Fatal("RunCycle() error = nil, want selection failure")
	}
	if len(o.entries) != 1 {
		t.Errorf("entries = %d after failed refresh, want 1 (set untouched)", len(o.entries))
	}
}

func TestStats(t *testing.T) {
	sel := &fakeSelector{scored: []domain.ScoredFixture{
		scoredFixture(10, 8.0, domain.StatusSecondHalf),
		scoredFixture(11, 4.0, domain.StatusScheduled),
	}}
	o := newTestOrchestrator(sel, &fakeDetector{}, &fakeAlerter{})
	o.alerts = &fakeAlertStats{sent: 7, rate: 0.62}

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	st, err := o.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.ActiveFixtures != 2 {
		t.Errorf("ActiveFixtures = %d, want 2", st.ActiveFixtures)
	}
	if st.LiveFixtures != 1 {
		t.Errorf("LiveFixtures = %d, want 1", st.LiveFixtures)
	}
	if st.AlertsSent24h != 7 {
		t.Errorf("AlertsSent24h = %d, want 7", st.AlertsSent24h)
	}
	if math.Abs(st.SuccessRate7d-0.62) > 1e-9 {
		t.Errorf("SuccessRate7d = %v, want 0.62", st.SuccessRate7d)
	}
}
