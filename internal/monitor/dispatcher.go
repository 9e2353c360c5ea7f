package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/message"
)

// Subscribers resolves the recipients of a tier.
type Subscribers interface {
	ListByTier(ctx context.Context, tier domain.Tier) ([]domain.Subscriber, error)
}

// Notifier delivers rendered text to one recipient.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// AlertLog records sent alerts for settlement and stats.
type AlertLog interface {
	RecordSent(ctx context.Context, alert domain.Alert) error
}

// Dispatcher turns a detected opportunity into subscriber messages: the
// pre-alert goes out immediately, the main alert after the tier's delay
// as a cancellable scheduled send, and estratega recipients also get
// the detailed analysis. Scheduled sends for a fixture are cancelled
// when it leaves monitoring, so subscribers never receive an alert for
// a match the system stopped watching.
type Dispatcher struct {
	subs   Subscribers
	notif  Notifier
	alerts AlertLog
	delays map[domain.Tier]time.Duration
	logger *slog.Logger

	// base outlives any single cycle so scheduled sends survive the
	// errgroup context of the sweep that created them.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[int64][]pendingSend // keyed by fixture id
	wg      sync.WaitGroup

	now func() time.Time
}

type pendingSend struct {
	oppID  string
	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher. delays maps each tier to how long
// its main alert is held back after the pre-alert.
func NewDispatcher(
	subs Subscribers,
	notif Notifier,
	alerts AlertLog,
	delays map[domain.Tier]time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		subs:    subs,
		notif:   notif,
		alerts:  alerts,
		delays:  delays,
		logger:  logger.With(slog.String("component", "dispatcher")),
		base:    base,
		cancel:  cancel,
		pending: make(map[int64][]pendingSend),
		now:     time.Now,
	}
}

// Dispatch records the alert, sends the pre-alert to every active
// subscriber of the opportunity's tier, and schedules the main alert.
// Delivery failures are logged, never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, opp domain.Opportunity) {
	if err := d.alerts.RecordSent(ctx, alertFromOpportunity(opp, d.now())); err != nil {
		d.logger.WarnContext(ctx, "record alert failed",
			slog.String("alert_id", opp.ID),
			slog.Int64("fixture_id", opp.FixtureID),
			slog.String("error", err.Error()),
		)
	}

	recipients := d.recipients(ctx, opp.Tier)
	if len(recipients) == 0 {
		d.logger.DebugContext(ctx, "no active subscribers for tier",
			slog.String("tier", opp.Tier.String()),
			slog.Int64("fixture_id", opp.FixtureID),
		)
		return
	}

	d.broadcast(ctx, recipients, message.PreAlert(&opp))

	delay := d.delays[opp.Tier]
	if delay <= 0 {
		d.sendMain(ctx, recipients, opp)
		return
	}
	d.schedule(opp, recipients, delay)
}

// CancelFixture aborts every scheduled send for the fixture.
func (d *Dispatcher) CancelFixture(fixtureID int64) {
	d.mu.Lock()
	sends := d.pending[fixtureID]
	delete(d.pending, fixtureID)
	d.mu.Unlock()

	for _, p := range sends {
		p.cancel()
	}
	if len(sends) > 0 {
		d.logger.Info("scheduled alerts cancelled",
			slog.Int64("fixture_id", fixtureID),
			slog.Int("count", len(sends)),
		)
	}
}

// Stop aborts all scheduled sends and waits for send goroutines to
// finish.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) schedule(opp domain.Opportunity, recipients []int64, delay time.Duration) {
	sctx, cancel := context.WithCancel(d.base)

	d.mu.Lock()
	d.pending[opp.FixtureID] = append(d.pending[opp.FixtureID], pendingSend{oppID: opp.ID, cancel: cancel})
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.forget(opp.FixtureID, opp.ID)
		defer cancel()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-sctx.Done():
			d.logger.Info("scheduled alert dropped",
				slog.String("alert_id", opp.ID),
				slog.Int64("fixture_id", opp.FixtureID),
			)
			return
		case <-timer.C:
		}
		d.sendMain(sctx, recipients, opp)
	}()
}

// forget removes one pending send record once it has fired or been
// dropped.
func (d *Dispatcher) forget(fixtureID int64, oppID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sends := d.pending[fixtureID]
	for i, p := range sends {
		if p.oppID == oppID {
			sends = append(sends[:i], sends[i+1:]...)
			break
		}
	}
	if len(sends) == 0 {
		delete(d.pending, fixtureID)
		return
	}
	d.pending[fixtureID] = sends
}

func (d *Dispatcher) sendMain(ctx context.Context, recipients []int64, opp domain.Opportunity) {
	d.broadcast(ctx, recipients, message.MainAlert(&opp, opp.Tier))
	if opp.Tier == domain.TierEstratega {
		d.broadcast(ctx, recipients, message.DetailedAnalysis(&opp))
	}
	d.logger.InfoContext(ctx, "alert delivered",
		slog.String("alert_id", opp.ID),
		slog.Int64("fixture_id", opp.FixtureID),
		slog.String("market", opp.Market.String()),
		slog.String("tier", opp.Tier.String()),
		slog.Int("recipients", len(recipients)),
	)
}

func (d *Dispatcher) broadcast(ctx context.Context, recipients []int64, text string) {
	for _, userID := range recipients {
		if err := d.notif.Send(ctx, userID, text); err != nil {
			d.logger.WarnContext(ctx, "delivery failed",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (d *Dispatcher) recipients(ctx context.Context, tier domain.Tier) []int64 {
	subs, err := d.subs.ListByTier(ctx, tier)
	if err != nil {
		d.logger.ErrorContext(ctx, "list subscribers failed",
			slog.String("tier", tier.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	ids := make([]int64, 0, len(subs))
	for _, s := range subs {
		if s.Active {
			ids = append(ids, s.UserID)
		}
	}
	return ids
}

func alertFromOpportunity(opp domain.Opportunity, sentAt time.Time) domain.Alert {
	return domain.Alert{
		ID:            opp.ID,
		FixtureID:     opp.FixtureID,
		Market:        opp.Market,
		Tier:          opp.Tier,
		Probability:   opp.Probability,
		Confidence:    opp.Confidence,
		ExpectedValue: opp.ExpectedValue,
		Price:         opp.BestPrice,
		Minute:        opp.Minute,
		Score:         opp.Score,
		Outcome:       domain.AlertPending,
		SentAt:        sentAt,
	}
}
