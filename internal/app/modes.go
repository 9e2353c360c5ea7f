package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oddsight/oddsight/internal/catalog"
	"github.com/oddsight/oddsight/internal/detect"
	"github.com/oddsight/oddsight/internal/domain"
	"github.com/oddsight/oddsight/internal/feature"
	"github.com/oddsight/oddsight/internal/message"
	"github.com/oddsight/oddsight/internal/monitor"
	"github.com/oddsight/oddsight/internal/notify"
	"github.com/oddsight/oddsight/internal/pipeline"
	"github.com/oddsight/oddsight/internal/predict"
	"github.com/oddsight/oddsight/internal/rules"
	"github.com/oddsight/oddsight/internal/selector"
	"github.com/oddsight/oddsight/internal/service"
	"github.com/oddsight/oddsight/internal/settle"
)

// snapshotArchivePrefix is where the archiver parks fixture history and
// where replay reads it back from.
const snapshotArchivePrefix = "archive/snapshots/"

// pipelineDeps are the detection-path components shared by the monitor
// and scan modes.
type pipelineDeps struct {
	fixtures *service.FixtureService
	selector *selector.Selector
	detector *detect.Detector
}

// buildPipeline assembles the selection and detection path on top of
// the wired dependencies: catalog, rule engine, feature extraction, the
// prediction engine and the fixture service feeding them.
func (a *App) buildPipeline(deps *Dependencies) (*pipelineDeps, error) {
	cat, err := catalog.Load(a.cfg.Catalog.PopularityPath, a.cfg.Catalog.PriorsPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	rulesEngine := rules.NewEngine()
	engine := predict.NewEngine(predict.Config{
		ModelsDir:   a.cfg.Models.Dir,
		MLWeight:    a.cfg.Models.MLWeight,
		RulesWeight: a.cfg.Models.RulesWeight,
	}, rulesEngine, feature.NewExtractor(cat), a.logger)

	fixtures := service.NewFixtureService(deps.Provider, deps.Fixtures, deps.Snapshots, deps.SnapshotCache, a.logger)

	sel := selector.New(selector.Config{
		RelevanceWeight: a.cfg.Monitor.RelevanceWeight,
		PotentialWeight: a.cfg.Monitor.PotentialWeight,
		LookAhead:       a.cfg.Monitor.LookAhead.Duration,
		TierQuotas:      a.tierQuotas(),
	}, fixtures, engine, rulesEngine, cat, deps.TeamStats, a.logger)

	det := detect.NewDetector(detect.Config{
		MinExpectedValue: a.cfg.Monitor.MinExpectedValue,
		TierConfidence:   a.tierConfidence(),
	}, fixtures, engine, rulesEngine, cat, deps.TeamStats, a.logger)

	return &pipelineDeps{fixtures: fixtures, selector: sel, detector: det}, nil
}

func (a *App) tierQuotas() map[domain.Tier]int {
	return map[domain.Tier]int{
		domain.TierFree:      a.cfg.Tiers.Free.Quota,
		domain.TierInsider:   a.cfg.Tiers.Insider.Quota,
		domain.TierEstratega: a.cfg.Tiers.Estratega.Quota,
	}
}

func (a *App) tierConfidence() map[domain.Tier]float64 {
	return map[domain.Tier]float64{
		domain.TierFree:      a.cfg.Tiers.Free.MinConfidence,
		domain.TierInsider:   a.cfg.Tiers.Insider.MinConfidence,
		domain.TierEstratega: a.cfg.Tiers.Estratega.MinConfidence,
	}
}

func (a *App) tierDelays() map[domain.Tier]time.Duration {
	return map[domain.Tier]time.Duration{
		domain.TierFree:      a.cfg.Tiers.Free.Delay.Duration,
		domain.TierInsider:   a.cfg.Tiers.Insider.Delay.Duration,
		domain.TierEstratega: a.cfg.Tiers.Estratega.Delay.Duration,
	}
}

// MonitorMode runs the full alerting service: the live monitoring loop,
// the alert settlement sweep and the scheduled training-data export.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	p, err := a.buildPipeline(deps)
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	dispatcher := monitor.NewDispatcher(deps.Subscribers, deps.Notifier, deps.Alerts, a.tierDelays(), a.logger)
	defer dispatcher.Stop()

	orch := monitor.NewOrchestrator(p.selector, p.detector, dispatcher, deps.Alerts, p.fixtures, p.fixtures, deps.Locks,
		monitor.Config{
			ScanInterval: a.cfg.Monitor.ScanInterval.Duration,
			Cooldown:     a.cfg.Monitor.Cooldown.Duration,
			MaxParallel:  a.cfg.Monitor.MaxParallel,
		}, a.logger)

	settler := settle.New(deps.Alerts, deps.Fixtures, deps.TeamStats, settle.Config{
		Interval: a.cfg.Settle.Interval.Duration,
		MinAge:   a.cfg.Settle.MinAge.Duration,
	}, a.logger)

	archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := orch.Start(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("monitor mode: orchestrator: %w", err)
	})

	g.Go(func() error {
		err := settler.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("monitor mode: settler: %w", err)
	})

	g.Go(func() error {
		err := archiver.RunCron(ctx, a.cfg.Archive.Cron)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("monitor mode: archiver: %w", err)
	})

	// Periodic status line: working-set size and recent alert
	// performance, one entry per scan interval.
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Monitor.ScanInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				st, err := orch.Stats(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "monitoring stats unavailable",
						slog.String("error", err.Error()),
					)
					continue
				}
				a.logger.InfoContext(ctx, "monitoring status",
					slog.Int("active_fixtures", st.ActiveFixtures),
					slog.Int("live_fixtures", st.LiveFixtures),
					slog.Int64("alerts_24h", st.AlertsSent24h),
					slog.Float64("success_rate_7d", st.SuccessRate7d),
				)
			}
		}
	})

	return g.Wait()
}

// ScanMode runs one selection and detection pass and prints every
// opportunity to the console. It uses the widest tier gate, so the
// output shows everything any tier would have received; nothing is
// recorded or delivered to subscribers.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	p, err := a.buildPipeline(deps)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	console := notify.NewConsoleSender(a.logger)

	scored, err := p.selector.SelectForMonitoring(ctx, domain.TierEstratega)
	if err != nil {
		return fmt.Errorf("scan mode: select fixtures: %w", err)
	}

	found := 0
	for _, sf := range scored {
		opp, err := p.detector.Detect(ctx, sf.Snapshot.FixtureID, domain.TierEstratega)
		if err != nil {
			a.logger.WarnContext(ctx, "detection failed",
				slog.Int64("fixture_id", sf.Snapshot.FixtureID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if opp == nil {
			continue
		}
		found++
		_ = console.SendMessage(ctx, 0, message.MainAlert(opp, opp.Tier))
		_ = console.SendMessage(ctx, 0, message.DetailedAnalysis(opp))
	}

	a.logger.InfoContext(ctx, "scan complete",
		slog.Int("fixtures", len(scored)),
		slog.Int("opportunities", found),
	)
	return nil
}

// replaySource feeds the detector the snapshot currently being
// replayed. Replay detects synchronously, one snapshot at a time, so a
// plain field swap between calls is enough.
type replaySource struct {
	snap domain.FixtureSnapshot
}

func (r *replaySource) Snapshot(ctx context.Context, fixtureID int64) (domain.FixtureSnapshot, error) {
	return r.snap, nil
}

// offlineTeamStats stands in for the history store when replaying
// without a database. Justifications fall back to the catalog rates.
type offlineTeamStats struct{}

func (offlineTeamStats) TeamStrength(ctx context.Context, teamID int64) (float64, error) {
	return 0, domain.ErrNotFound
}

func (offlineTeamStats) HeadToHead(ctx context.Context, homeID, awayID int64) (domain.HeadToHead, error) {
	return domain.HeadToHead{}, domain.ErrNotFound
}

func (offlineTeamStats) RecordResult(ctx context.Context, res domain.MatchResult) error {
	return nil
}

// ReplayMode runs the detector over the archived snapshot history in
// the bucket and prints the opportunities each snapshot would have
// produced. It is a backtesting aid: no provider calls, no persistence,
// no delivery.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")

	cat, err := catalog.Load(a.cfg.Catalog.PopularityPath, a.cfg.Catalog.PriorsPath)
	if err != nil {
		return fmt.Errorf("replay mode: load catalog: %w", err)
	}
	rulesEngine := rules.NewEngine()
	engine := predict.NewEngine(predict.Config{
		ModelsDir:   a.cfg.Models.Dir,
		MLWeight:    a.cfg.Models.MLWeight,
		RulesWeight: a.cfg.Models.RulesWeight,
	}, rulesEngine, feature.NewExtractor(cat), a.logger)

	source := &replaySource{}
	det := detect.NewDetector(detect.Config{
		MinExpectedValue: a.cfg.Monitor.MinExpectedValue,
		TierConfidence:   a.tierConfidence(),
	}, source, engine, rulesEngine, cat, offlineTeamStats{}, a.logger)
	console := notify.NewConsoleSender(a.logger)

	blobs, err := deps.BlobReader.List(ctx, snapshotArchivePrefix)
	if err != nil {
		return fmt.Errorf("replay mode: list archives: %w", err)
	}
	if len(blobs) == 0 {
		a.logger.InfoContext(ctx, "no archived snapshots to replay",
			slog.String("prefix", snapshotArchivePrefix),
		)
		return nil
	}
	// Archive keys embed the cutoff date, so path order is time order.
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Path < blobs[j].Path })

	var snapshots, found int
	for _, blob := range blobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, hits, err := a.replayBlob(ctx, deps, det, source, console, blob.Path)
		if err != nil {
			a.logger.WarnContext(ctx, "replay of archive failed",
				slog.String("path", blob.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		snapshots += n
		found += hits
	}

	a.logger.InfoContext(ctx, "replay complete",
		slog.Int("archives", len(blobs)),
		slog.Int("snapshots", snapshots),
		slog.Int("opportunities", found),
	)
	return nil
}

// replayBlob streams one JSONL archive through the detector. Lines that
// fail to decode are counted and skipped; a truncated trailing line
// must not sink the rest of the file.
func (a *App) replayBlob(
	ctx context.Context,
	deps *Dependencies,
	det *detect.Detector,
	source *replaySource,
	console *notify.ConsoleSender,
	path string,
) (snapshots, found int, err error) {
	rc, err := deps.BlobReader.Get(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("get %s: %w", path, err)
	}
	defer rc.Close()

	var malformed int
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap domain.FixtureSnapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			malformed++
			continue
		}
		snapshots++

		source.snap = snap
		opp, err := det.Detect(ctx, snap.FixtureID, domain.TierEstratega)
		if err != nil || opp == nil {
			continue
		}
		found++
		_ = console.SendMessage(ctx, 0, message.MainAlert(opp, opp.Tier))
	}
	if err := scanner.Err(); err != nil {
		return snapshots, found, fmt.Errorf("read %s: %w", path, err)
	}

	if malformed > 0 {
		a.logger.WarnContext(ctx, "skipped malformed archive lines",
			slog.String("path", path),
			slog.Int("count", malformed),
		)
	}
	a.logger.InfoContext(ctx, "archive replayed",
		slog.String("path", path),
		slog.Int("snapshots", snapshots),
		slog.Int("opportunities", found),
	)
	return snapshots, found, nil
}
