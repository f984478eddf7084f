// Package coordinator drives the four-phase per-feed pipeline
// (Enqueue, Download, Prune, RSS) and records the resulting sync state.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/pipeline"
	"anypod/internal/rss"
	"anypod/internal/schedule"
)

// PhaseResult records the outcome and timing of one pipeline phase.
type PhaseResult struct {
	Success  bool
	Count    int
	Duration time.Duration
	Errors   []error
}

// ProcessingResults is the full outcome of one process_feed run.
type ProcessingResults struct {
	FeedID        string
	Enqueue       PhaseResult
	Download      PhaseResult
	Prune         PhaseResult
	RSS           PhaseResult
	OverallSuccess bool
}

var phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "anypod_phase_duration_seconds",
	Help: "Duration of each per-feed pipeline phase.",
}, []string{"phase"})

var phaseFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "anypod_phase_failures_total",
	Help: "Count of per-feed pipeline phase failures.",
}, []string{"phase"})

func init() {
	prometheus.MustRegister(phaseDuration, phaseFailures)
}

// DataCoordinator is the per-feed pipeline driver.
type DataCoordinator struct {
	feeds     *db.FeedStore
	enqueuer  *pipeline.Enqueuer
	downloader *pipeline.Downloader
	pruner    *pipeline.Pruner
	rssGen    *rss.Generator
}

func NewDataCoordinator(feeds *db.FeedStore, enqueuer *pipeline.Enqueuer, downloader *pipeline.Downloader, pruner *pipeline.Pruner, rssGen *rss.Generator) *DataCoordinator {
	return &DataCoordinator{feeds: feeds, enqueuer: enqueuer, downloader: downloader, pruner: pruner, rssGen: rssGen}
}

// ProcessFeed runs all four phases for feedID in order, marking sync
// success/failure based on the Enqueue phase's outcome alone.
func (c *DataCoordinator) ProcessFeed(ctx context.Context, feedID string, fc *config.FeedConfig, cookiesPath string) (ProcessingResults, error) {
	runID := uuid.New().String()
	log := slog.With("feed_id", feedID, "run_id", runID)
	results := ProcessingResults{FeedID: feedID}

	feed, err := c.feeds.GetFeedByID(ctx, feedID)
	if err != nil {
		return results, err
	}

	fetchSince := db.MinSyncDate
	if feed.LastSuccessfulSync != nil {
		fetchSince = *feed.LastSuccessfulSync
	}
	now := time.Now().UTC()

	fetchUntil := now
	if sched, err := schedule.ParseSchedule(fc.Schedule); err == nil {
		fetchUntil = schedule.CalculateFetchUntilDate(sched, fetchSince, now)
	}

	// Phase 1: Enqueue.
	enqStart := time.Now()
	enqResult, enqErr := c.enqueuer.EnqueueFeed(ctx, feed, fc, fetchSince, fetchUntil)
	results.Enqueue = PhaseResult{
		Success:  enqErr == nil,
		Count:    enqResult.NewlyQueuedCount,
		Duration: time.Since(enqStart),
		Errors:   enqResult.Errors,
	}
	recordPhase("enqueue", results.Enqueue)
	if enqErr != nil {
		log.Warn("enqueue phase failed", "error", enqErr)
	}

	// Phase 2: Download (best-effort even if enqueue failed — already
	// queued items still deserve a chance to download).
	dlStart := time.Now()
	dlResult := c.downloader.DownloadQueued(ctx, feed, fc, cookiesPath, -1)
	results.Download = PhaseResult{
		Success:  dlResult.FailureCount == 0,
		Count:    dlResult.SuccessCount,
		Duration: time.Since(dlStart),
		Errors:   dlResult.Errors,
	}
	recordPhase("download", results.Download)

	// Phase 3: Prune.
	pruneStart := time.Now()
	pruneResult := c.pruner.PruneFeedDownloads(ctx, feedID, feed.KeepLast, feed.Since)
	results.Prune = PhaseResult{
		Success:  len(pruneResult.Errors) == 0,
		Count:    pruneResult.ArchivedCount,
		Duration: time.Since(pruneStart),
		Errors:   pruneResult.Errors,
	}
	recordPhase("prune", results.Prune)

	// Phase 4: RSS.
	rssStart := time.Now()
	rssErr := c.rssGen.UpdateFeed(ctx, feed)
	results.RSS = PhaseResult{
		Success:  rssErr == nil,
		Duration: time.Since(rssStart),
	}
	if rssErr != nil {
		results.RSS.Errors = []error{rssErr}
	}
	recordPhase("rss", results.RSS)

	if enqErr == nil {
		if err := c.feeds.MarkSyncSuccess(ctx, feedID, &enqResult.LastSuccessfulSyncCandidate); err != nil {
			log.Warn("mark_sync_success failed", "error", err)
		}
	} else {
		if err := c.feeds.MarkSyncFailure(ctx, feedID); err != nil {
			log.Warn("mark_sync_failure failed", "error", err)
		}
	}
	if rssErr == nil {
		if err := c.feeds.MarkRSSGenerated(ctx, feedID); err != nil {
			log.Warn("mark_rss_generated failed", "error", err)
		}
	}

	results.OverallSuccess = results.Enqueue.Success && results.Download.Success &&
		results.Prune.Success && results.RSS.Success
	return results, nil
}

func recordPhase(phase string, r PhaseResult) {
	phaseDuration.WithLabelValues(phase).Observe(r.Duration.Seconds())
	if !r.Success {
		phaseFailures.WithLabelValues(phase).Inc()
	}
}
