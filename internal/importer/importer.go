package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/tdr0/connectors/internal/config"
	"github.com/tdr0/connectors/internal/journal"
	"github.com/tdr0/connectors/internal/metrics"
	"github.com/tdr0/connectors/internal/opencti"
	"github.com/tdr0/connectors/internal/otx"
	"log/slog"
)

// defaultLookback bounds the first fetch when neither a state watermark nor
// pulse_start_timestamp is configured.
const defaultLookback = 30 * 24 * time.Hour

// dedupWindow is how long imported pulse revisions are remembered.
const dedupWindow = 7 * 24 * time.Hour

// PulseFetcher retrieves pulses from the external feed.
type PulseFetcher interface {
	GetPulsesSince(ctx context.Context, since time.Time) ([]otx.Pulse, error)
}

// Platform is the subset of the OpenCTI client the importer drives.
type Platform interface {
	CreateWork(ctx context.Context, friendlyName string) (string, error)
	AddExpectations(ctx context.Context, workID string, expectations int) error
	CompleteWork(ctx context.Context, workID, message string, inError bool) error
	SetState(ctx context.Context, state opencti.State) error
}

// BundlePusher delivers serialized bundles to the platform ingest queue.
type BundlePusher interface {
	PushBundle(ctx context.Context, workID string, bundle []byte, update bool) error
}

// Importer executes import runs: fetch pulses, convert, push, advance state.
type Importer struct {
	name       string
	feed       PulseFetcher
	platform   Platform
	pusher     BundlePusher
	journal    journal.Journal
	metrics    *metrics.Collector
	converter  *Converter
	dedup      *Deduplicator
	logger     *slog.Logger
	updateData bool
	pulseStart time.Time

	state opencti.State
}

// New constructs an importer. The journal may be journal.Nop when auditing
// is disabled.
func New(
	cfg config.Config,
	feed PulseFetcher,
	platform Platform,
	pusher BundlePusher,
	jnl journal.Journal,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Importer {
	return &Importer{
		name:       cfg.Connector.Name,
		feed:       feed,
		platform:   platform,
		pusher:     pusher,
		journal:    jnl,
		metrics:    collector,
		converter:  NewConverter(cfg.Connector, cfg.AlienVault, logger),
		dedup:      NewDeduplicator(dedupWindow),
		logger:     logger,
		updateData: cfg.Connector.UpdateExistingData,
		pulseStart: cfg.AlienVault.PulseStart(),
	}
}

// SetInitialState seeds the importer with the state stored on the platform.
func (i *Importer) SetInitialState(state opencti.State) {
	i.state = state
}

// LastRun returns when the importer last completed a run, or the zero time.
func (i *Importer) LastRun() time.Time {
	return i.state.LastRunTime()
}

// sinceTime picks the modification lower bound for the next fetch: the
// stored watermark, then the configured pulse_start_timestamp, then a
// bounded lookback.
func (i *Importer) sinceTime(now time.Time) time.Time {
	if mark := i.state.Watermark(); !mark.IsZero() {
		return mark
	}
	if !i.pulseStart.IsZero() {
		return i.pulseStart
	}
	return now.Add(-defaultLookback)
}

// RunOnce executes a complete import run. Per-pulse failures are recorded
// and skipped; only a failed fetch fails the run.
func (i *Importer) RunOnce(ctx context.Context) error {
	start := time.Now()
	since := i.sinceTime(start)

	i.logger.Info("starting import run", "since", since.UTC().Format(time.RFC3339))

	runID, err := i.journal.StartRun(ctx, start)
	if err != nil {
		i.logger.Warn("failed to open journal run", "error", err)
	}

	workID, err := i.platform.CreateWork(ctx, fmt.Sprintf("%s run @ %s", i.name, start.UTC().Format(time.RFC3339)))
	if err != nil {
		i.failRun(ctx, runID, "", start, 0, fmt.Errorf("create work: %w", err))
		return fmt.Errorf("create work: %w", err)
	}

	pulses, err := i.feed.GetPulsesSince(ctx, since)
	if err != nil {
		i.metrics.IncError("fetch")
		i.failRun(ctx, runID, workID, start, 0, fmt.Errorf("fetch pulses: %w", err))
		return fmt.Errorf("fetch pulses: %w", err)
	}
	i.metrics.AddPulses(len(pulses))

	fresh := make([]otx.Pulse, 0, len(pulses))
	for _, pulse := range pulses {
		if i.dedup.IsNew(pulse) {
			fresh = append(fresh, pulse)
		}
	}
	if dropped := len(pulses) - len(fresh); dropped > 0 {
		i.logger.Info("skipping already imported pulse revisions", "count", dropped)
	}

	if err := i.platform.AddExpectations(ctx, workID, len(fresh)); err != nil {
		i.logger.Warn("failed to report work expectations", "error", err)
	}

	var (
		bundlesSent     int
		indicatorsSent  int
		pushErrors      int
		latest          time.Time
		earliestFailure time.Time
	)

	for _, pulse := range fresh {
		bundle, stats := i.converter.Convert(pulse, start)

		data, err := bundle.JSON()
		if err != nil {
			i.recordPulseError(ctx, runID, "convert", pulse.ID, err)
			continue
		}

		if err := i.pusher.PushBundle(ctx, workID, data, i.updateData); err != nil {
			pushErrors++
			i.recordPulseError(ctx, runID, "push", pulse.ID, err)
			// Not marked as imported: the next cycle retries this revision.
			if earliestFailure.IsZero() || pulse.Modified.Before(earliestFailure) {
				earliestFailure = pulse.Modified
			}
			continue
		}

		i.dedup.Mark(pulse)
		bundlesSent++
		indicatorsSent += stats.Indicators
		i.observeStats(stats)

		if pulse.Modified.After(latest) {
			latest = pulse.Modified
		}

		i.logger.Debug("pulse imported",
			"pulse_id", pulse.ID,
			"name", pulse.Name,
			"objects", bundle.Len(),
			"indicators", stats.Indicators,
			"skipped", stats.Skipped,
		)
	}

	i.dedup.Cleanup(start)

	// The watermark only advances on pushed pulses, and a failed pulse keeps
	// it strictly below its modification time so the next fetch window still
	// covers it. Re-fetched pulses that did push are filtered by the dedup
	// window, not the watermark.
	watermark := i.state.Watermark()
	if latest.After(watermark) {
		watermark = latest
	}
	if !earliestFailure.IsZero() && !watermark.Before(earliestFailure) {
		watermark = earliestFailure.Add(-time.Second)
	}

	newState := opencti.State{LastRun: start.Unix()}
	if !watermark.IsZero() {
		newState.LatestPulseTimestamp = watermark.UTC().Format(time.RFC3339)
	}
	if err := i.platform.SetState(ctx, newState); err != nil {
		i.logger.Error("failed to persist connector state", "error", err)
	} else {
		i.state = newState
	}

	message := fmt.Sprintf("imported %d of %d pulses (%d indicators)", bundlesSent, len(fresh), indicatorsSent)
	if err := i.platform.CompleteWork(ctx, workID, message, pushErrors > 0); err != nil {
		i.logger.Warn("failed to complete work", "work_id", workID, "error", err)
	}

	finished := time.Now()
	status := journal.RunStatusSucceeded
	if pushErrors > 0 && bundlesSent == 0 {
		status = journal.RunStatusFailed
	}
	if err := i.journal.FinishRun(ctx, journal.RunRecord{
		ID:             runID,
		FinishedAt:     &finished,
		PulsesFetched:  len(pulses),
		BundlesSent:    bundlesSent,
		IndicatorsSent: indicatorsSent,
		Status:         status,
	}); err != nil {
		i.logger.Warn("failed to close journal run", "error", err)
	}

	i.metrics.ObserveRun(string(status), finished.Sub(start))

	i.logger.Info("import run finished",
		"pulses", len(pulses),
		"bundles_sent", bundlesSent,
		"indicators_sent", indicatorsSent,
		"push_errors", pushErrors,
		"duration", finished.Sub(start),
	)

	return nil
}

// observeStats feeds conversion counters into the metrics collector.
func (i *Importer) observeStats(stats ConvertStats) {
	i.metrics.IncBundles()
	i.metrics.AddObjects("indicator", stats.Indicators)
	i.metrics.AddObjects("observable", stats.Observables)
	i.metrics.AddObjects("malware", stats.Malware)
	i.metrics.AddObjects("attack-pattern", stats.AttackPatterns)
	i.metrics.AddObjects("vulnerability", stats.Vulnerabilities)
	i.metrics.AddObjects("relationship", stats.Relationships)
	i.metrics.AddObjects("report", 1)
}

// recordPulseError logs and journals one per-pulse failure.
func (i *Importer) recordPulseError(ctx context.Context, runID, stage, pulseID string, err error) {
	i.metrics.IncError(stage)
	i.logger.Error("pulse import failed", "stage", stage, "pulse_id", pulseID, "error", err)

	if jerr := i.journal.LogError(ctx, journal.ImportError{
		RunID:   runID,
		Stage:   stage,
		PulseID: pulseID,
		Message: err.Error(),
	}); jerr != nil {
		i.logger.Warn("failed to journal import error", "error", jerr)
	}
}

// failRun records a run-level failure across the journal, metrics and the
// platform work.
func (i *Importer) failRun(ctx context.Context, runID, workID string, start time.Time, pulses int, cause error) {
	if workID != "" {
		if err := i.platform.CompleteWork(ctx, workID, cause.Error(), true); err != nil {
			i.logger.Warn("failed to complete work in error", "error", err)
		}
	}

	finished := time.Now()
	if err := i.journal.FinishRun(ctx, journal.RunRecord{
		ID:            runID,
		FinishedAt:    &finished,
		PulsesFetched: pulses,
		Status:        journal.RunStatusFailed,
		Error:         cause.Error(),
	}); err != nil {
		i.logger.Warn("failed to close journal run", "error", err)
	}

	i.metrics.ObserveRun(string(journal.RunStatusFailed), finished.Sub(start))
}
