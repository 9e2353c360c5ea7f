// Package monitor runs the live monitoring loop. The orchestrator keeps
// a working set of prioritized fixtures, re-checks each on a cadence
// scaled to its priority, runs opportunity detection per tier, and
// hands hits to the dispatcher. One alert per fixture, market and tier
// inside the cooldown window, no matter how often the fixture is
// re-checked.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oddsight/oddsight/internal/domain"
)

// sweepTick is how often the orchestrator looks for entries whose
// adaptive interval has elapsed. It bounds how early a hot fixture can
// be re-checked, so it stays well under the shortest interval.
const sweepTick = 10 * time.Second

// cycleLockKey guards the scan cycle across instances sharing a Redis.
const cycleLockKey = "monitor:cycle"

// Selector picks which fixtures deserve live monitoring.
type Selector interface {
	SelectForMonitoring(ctx context.Context, tier domain.Tier) ([]domain.ScoredFixture, error)
}

// Detector finds the single best opportunity for a fixture at a tier.
type Detector interface {
	Detect(ctx context.Context, fixtureID int64, tier domain.Tier) (*domain.Opportunity, error)
}

// FixtureStates reads a fixture's current state. The orchestrator uses
// it to confirm an unselected entry has really left play before reaping
// it, so a live match squeezed out by quota pressure stays watched.
type FixtureStates interface {
	Snapshot(ctx context.Context, fixtureID int64) (domain.FixtureSnapshot, error)
}

// Alerter receives detected opportunities and owns their delivery.
type Alerter interface {
	Dispatch(ctx context.Context, opp domain.Opportunity)
	CancelFixture(fixtureID int64)
}

// AlertStats exposes the sent-alert counters reported by Stats.
type AlertStats interface {
	CountSentSince(ctx context.Context, since time.Time) (int64, error)
	SuccessRate(ctx context.Context, since time.Time) (float64, error)
}

// Watchlist persists which fixtures the loop is watching, so a restart
// can rebuild its working set from the store when the provider's live
// listing is unavailable.
type Watchlist interface {
	MarkMonitored(ctx context.Context, fixtureID int64, monitored bool) error
}

// Config holds the orchestrator's tunables.
type Config struct {
	ScanInterval time.Duration // working-set refresh period
	Cooldown     time.Duration // per fixture+market+tier alert suppression
	MaxParallel  int           // concurrent fixture checks
}

// detectionTiers is the per-entry detection order, widest gate first.
var detectionTiers = []domain.Tier{domain.TierEstratega, domain.TierInsider, domain.TierFree}

// Orchestrator owns the monitoring working set and the loop that keeps
// it fresh.
type Orchestrator struct {
	selector  Selector
	detector  Detector
	alerter   Alerter
	alerts    AlertStats
	states    FixtureStates      // nil skips liveness confirmation on reap
	watchlist Watchlist          // nil when persistence is not wired
	locks     domain.LockManager // nil when running single-instance
	cfg       Config
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[int64]*entry

	inCycle  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// entry is the working-set record for one monitored fixture. Its own
// mutex serializes claim/cooldown state so sweeps can run concurrently.
type entry struct {
	mu        sync.Mutex
	fixtureID int64
	score     float64
	live      bool
	misses    int // consecutive refreshes the selector skipped this fixture
	lastCheck time.Time
	sent      map[alertKey]time.Time // last alert per market+tier
}

type alertKey struct {
	market domain.Market
	tier   domain.Tier
}

// liveMissLimit is how many consecutive refreshes a live entry may go
// unselected before its current state is consulted. Finished fixtures
// stop being selected but keep their last-seen live flag, so they need
// this exit path; a match confirmed still in play is kept regardless.
const liveMissLimit = 3

// NewOrchestrator creates an Orchestrator. states, watchlist and locks
// may be nil, which disables reap confirmation, store mirroring and
// cross-instance cycle exclusion respectively.
func NewOrchestrator(
	selector Selector,
	detector Detector,
	alerter Alerter,
	alerts AlertStats,
	states FixtureStates,
	watchlist Watchlist,
	locks domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	return &Orchestrator{
		selector:  selector,
		detector:  detector,
		alerter:   alerter,
		alerts:    alerts,
		states:    states,
		watchlist: watchlist,
		locks:     locks,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "monitor")),
		entries:   make(map[int64]*entry),
		stop:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start runs the monitoring loop until ctx is cancelled or Stop is
// called: a full cycle on every scan interval, plus a fast sweep
// between cycles so hot fixtures are re-checked on their own cadence.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.logger.Info("monitor starting",
		slog.Duration("scan_interval", o.cfg.ScanInterval),
		slog.Duration("cooldown", o.cfg.Cooldown),
		slog.Int("max_parallel", o.cfg.MaxParallel),
	)

	if err := o.RunCycle(ctx); err != nil {
		o.logger.Error("initial cycle failed", slog.String("error", err.Error()))
	}

	scan := time.NewTicker(o.cfg.ScanInterval)
	defer scan.Stop()
	sweep := time.NewTicker(sweepTick)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("monitor stopped")
			return ctx.Err()
		case <-o.stop:
			o.logger.Info("monitor stopped")
			return nil
		case <-scan.C:
			if err := o.RunCycle(ctx); err != nil {
				o.logger.Error("cycle failed", slog.String("error", err.Error()))
			}
		case <-sweep.C:
			o.checkDue(ctx)
		}
	}
}

// Stop signals a running Start loop to exit. Safe to call more than
// once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// RunCycle refreshes the working set and immediately checks every entry
// that is due. Cycles never overlap: if one is still running when the
// next is requested, the request is skipped and logged.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if !o.inCycle.CompareAndSwap(false, true) {
		o.logger.Warn("previous cycle still running, skipping")
		return nil
	}
	defer o.inCycle.Store(false)

	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, cycleLockKey, o.cfg.ScanInterval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				o.logger.Info("cycle lock held by another instance, skipping")
				return nil
			}
			return fmt.Errorf("monitor: acquire cycle lock: %w", err)
		}
		defer unlock()
	}

	if err := o.refresh(ctx); err != nil {
		return err
	}
	o.checkDue(ctx)
	return nil
}

// Stats is a point-in-time view of the monitoring loop.
type Stats struct {
	ActiveFixtures int
	LiveFixtures   int
	AlertsSent24h  int64
	SuccessRate7d  float64
}

// Stats reports working-set size and recent alert performance.
func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	o.mu.Lock()
	st := Stats{ActiveFixtures: len(o.entries)}
	for _, e := range o.entries {
		e.mu.Lock()
		if e.live {
			st.LiveFixtures++
		}
		e.mu.Unlock()
	}
	o.mu.Unlock()

	now := o.now()
	sent, err := o.alerts.CountSentSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return st, fmt.Errorf("monitor: count sent alerts: %w", err)
	}
	st.AlertsSent24h = sent

	rate, err := o.alerts.SuccessRate(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return st, fmt.Errorf("monitor: success rate: %w", err)
	}
	st.SuccessRate7d = rate
	return st, nil
}

// refresh re-runs selection at the widest tier and reconciles the
// working set: new fixtures join, surviving ones get their priority
// updated, fixtures that dropped out and are not live leave at once,
// and live ones leave only once their stored state confirms play has
// ended. Departing fixtures have their scheduled alerts cancelled, and
// the resulting set is mirrored into the fixture store's monitored
// flag.
func (o *Orchestrator) refresh(ctx context.Context) error {
	scored, err := o.selector.SelectForMonitoring(ctx, domain.TierEstratega)
	if err != nil {
		return fmt.Errorf("monitor: select fixtures: %w", err)
	}

	selected := make(map[int64]domain.ScoredFixture, len(scored))
	for _, sf := range scored {
		selected[sf.Snapshot.FixtureID] = sf
	}

	o.mu.Lock()

	var added int
	for id, sf := range selected {
		e, ok := o.entries[id]
		if !ok {
			o.entries[id] = &entry{
				fixtureID: id,
				score:     sf.Score,
				live:      sf.Snapshot.Live(),
				sent:      make(map[alertKey]time.Time),
			}
			added++
			continue
		}
		e.mu.Lock()
		e.score = sf.Score
		e.live = sf.Snapshot.Live()
		e.misses = 0
		e.mu.Unlock()
	}

	var dropped, stale []int64
	for id, e := range o.entries {
		if _, ok := selected[id]; ok {
			continue
		}
		e.mu.Lock()
		e.misses++
		live, misses := e.live, e.misses
		e.mu.Unlock()
		switch {
		case live && misses < liveMissLimit:
		case live:
			stale = append(stale, id)
		default:
			delete(o.entries, id)
			dropped = append(dropped, id)
		}
	}

	o.mu.Unlock()

	dropped = append(dropped, o.reapStale(ctx, stale)...)

	o.mu.Lock()
	active := len(o.entries)
	o.mu.Unlock()

	for _, id := range dropped {
		o.alerter.CancelFixture(id)
	}
	o.markWatchlist(ctx, selected, dropped)

	o.logger.InfoContext(ctx, "working set refreshed",
		slog.Int("selected", len(scored)),
		slog.Int("added", added),
		slog.Int("removed", len(dropped)),
		slog.Int("active", active),
	)
	return nil
}

// reapStale removes live-flagged entries the selector stopped picking
// once their current state confirms the match has ended. A fixture
// squeezed out by quota pressure stays watched while it is in play;
// when its state cannot be read it is kept until it can. Without a
// states source the grace period alone decides.
func (o *Orchestrator) reapStale(ctx context.Context, ids []int64) []int64 {
	var reaped []int64
	for _, id := range ids {
		if o.states != nil {
			snap, err := o.states.Snapshot(ctx, id)
			if err != nil {
				o.logger.WarnContext(ctx, "unselected fixture state unreadable, keeping",
					slog.Int64("fixture_id", id),
					slog.String("error", err.Error()),
				)
				continue
			}
			if snap.Live() {
				continue
			}
		}
		reaped = append(reaped, id)
	}
	if len(reaped) == 0 {
		return nil
	}

	o.mu.Lock()
	for _, id := range reaped {
		delete(o.entries, id)
	}
	o.mu.Unlock()
	return reaped
}

// markWatchlist flags every selected fixture as monitored and clears
// the flag on the ones that just left. A brand-new fixture has no
// stored row until its first check persists a snapshot; the next
// refresh re-marks it, so a missing row is not worth a warning.
func (o *Orchestrator) markWatchlist(ctx context.Context, selected map[int64]domain.ScoredFixture, dropped []int64) {
	if o.watchlist == nil {
		return
	}
	mark := func(id int64, monitored bool) {
		err := o.watchlist.MarkMonitored(ctx, id, monitored)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			o.logger.DebugContext(ctx, "fixture not yet stored, watchlist mark deferred",
				slog.Int64("fixture_id", id),
			)
		default:
			o.logger.WarnContext(ctx, "watchlist mark failed",
				slog.Int64("fixture_id", id),
				slog.Bool("monitored", monitored),
				slog.String("error", err.Error()),
			)
		}
	}
	for id := range selected {
		mark(id, true)
	}
	for _, id := range dropped {
		mark(id, false)
	}
}

// checkDue runs detection on every entry whose adaptive interval has
// elapsed, at most MaxParallel fixtures at a time.
func (o *Orchestrator) checkDue(ctx context.Context) {
	now := o.now()

	o.mu.Lock()
	due := make([]*entry, 0, len(o.entries))
	for _, e := range o.entries {
		if e.claim(now) {
			due = append(due, e)
		}
	}
	o.mu.Unlock()

	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxParallel)
	for _, e := range due {
		e := e
		g.Go(func() error {
			o.checkEntry(gctx, e)
			return nil
		})
	}
	_ = g.Wait()
}

// checkEntry runs detection once per tier, widest gate first, and
// dispatches every hit that clears its cooldown.
func (o *Orchestrator) checkEntry(ctx context.Context, e *entry) {
	for _, tier := range detectionTiers {
		opp, err := o.detector.Detect(ctx, e.fixtureID, tier)
		if err != nil {
			// No usable snapshot; the other tiers would fail the
			// same way. Retry on the next interval.
			o.logger.WarnContext(ctx, "detection failed",
				slog.Int64("fixture_id", e.fixtureID),
				slog.String("tier", tier.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		if opp == nil {
			continue
		}
		key := alertKey{market: opp.Market, tier: tier}
		if !e.allow(key, o.now(), o.cfg.Cooldown) {
			o.logger.DebugContext(ctx, "alert suppressed by cooldown",
				slog.Int64("fixture_id", e.fixtureID),
				slog.String("market", opp.Market.String()),
				slog.String("tier", tier.String()),
			)
			continue
		}
		o.alerter.Dispatch(ctx, *opp)
	}
}

// claim marks the entry as being checked when its interval has elapsed.
// Claiming under the entry lock keeps overlapping sweeps from checking
// the same fixture twice.
func (e *entry) claim(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.lastCheck.IsZero() && now.Sub(e.lastCheck) < checkInterval(e.score) {
		return false
	}
	e.lastCheck = now
	return true
}

// allow reports whether an alert for key is outside its cooldown and,
// when it is, records the send time.
func (e *entry) allow(key alertKey, now time.Time, cooldown time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.sent[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	e.sent[key] = now
	return true
}

// checkInterval scales re-check cadence with priority: the hottest
// fixtures are polled every 30 seconds, the coldest every 5 minutes.
func checkInterval(score float64) time.Duration {
	switch {
	case score >= 9:
		return 30 * time.Second
	case score >= 7:
		return time.Minute
	case score >= 5:
		return 2 * time.Minute
	default:
		return 5 * time.Minute
	}
}
