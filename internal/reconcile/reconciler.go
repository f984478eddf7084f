// Package reconcile brings persisted Feed state in line with the
// currently loaded configuration document at startup.
package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/pipeline"
	"anypod/internal/ytdlp"
)

// StateReconciler reconciles db.Feed rows against a config.Document on
// process startup: new feeds are created, removed feeds are archived
// and disabled, and existing feeds pick up configuration changes.
type StateReconciler struct {
	feeds     *db.FeedStore
	downloads *db.DownloadStore
	pruner    *pipeline.Pruner
	extractor *ytdlp.ExtractorCore
}

func NewStateReconciler(feeds *db.FeedStore, downloads *db.DownloadStore, pruner *pipeline.Pruner, extractor *ytdlp.ExtractorCore) *StateReconciler {
	return &StateReconciler{feeds: feeds, downloads: downloads, pruner: pruner, extractor: extractor}
}

// ReconcileStartupState reconciles every configured feed against the
// database and returns the ids ready to be scheduled. A feed whose
// reconciliation fails is omitted from the result rather than aborting
// the whole pass.
func (r *StateReconciler) ReconcileStartupState(ctx context.Context, feedConfigs map[string]*config.FeedConfig) []string {
	existing, err := r.feeds.GetFeeds(ctx, nil)
	if err != nil {
		slog.Error("reconcile: failed to list existing feeds", "error", err)
		return nil
	}
	byID := make(map[string]db.Feed, len(existing))
	for _, f := range existing {
		byID[f.ID] = f
	}

	var ready []string

	for id, fc := range feedConfigs {
		log := slog.With("feed_id", id)
		if !fc.IsEnabled() {
			continue
		}

		feed, found := byID[id]
		if !found {
			if err := r.createFeed(ctx, id, fc); err != nil {
				log.Error("reconcile: failed to create feed", "error", err)
				continue
			}
			ready = append(ready, id)
			continue
		}

		if err := r.reconcileExisting(ctx, feed, fc); err != nil {
			log.Error("reconcile: failed to reconcile existing feed", "error", err)
			continue
		}
		ready = append(ready, id)
	}

	for id, feed := range byID {
		if _, stillConfigured := feedConfigs[id]; stillConfigured {
			continue
		}
		if !feed.IsEnabled {
			continue
		}
		if err := r.pruner.ArchiveFeed(ctx, id); err != nil {
			slog.Error("reconcile: failed to archive removed feed", "feed_id", id, "error", err)
		}
	}

	return ready
}

func (r *StateReconciler) createFeed(ctx context.Context, id string, fc *config.FeedConfig) error {
	since, err := fc.ParsedSince()
	if err != nil {
		return err
	}
	lastSync := db.MinSyncDate
	if since != nil {
		lastSync = *since
	}

	sourceType := db.SourceManual
	resolvedURL := ""
	if fc.URL != nil {
		resolvedURL = *fc.URL
	}
	if !fc.IsManual() {
		resolved, classified, err := r.extractor.DetermineFetchStrategy(ctx, id, resolvedURL, fc.YtArgsSlice())
		if err != nil {
			return err
		}
		resolvedURL = resolved
		sourceType = classified
	}

	feed := db.Feed{
		ID:                 id,
		SourceURL:          fc.URL,
		ResolvedURL:        resolvedURL,
		SourceType:         sourceType,
		IsEnabled:          true,
		LastSuccessfulSync: &lastSync,
		Since:              since,
		KeepLast:           fc.KeepLast,
		TranscriptLang:     fc.TranscriptLang,
	}
	if fc.Metadata != nil {
		applyMetadataToFeed(&feed, fc.Metadata)
	}
	return r.feeds.UpsertFeed(ctx, feed)
}

// reconcileExisting applies configuration drift to an already-known
// feed: URL changes re-run source classification and reset the failure
// counter (a changed source is treated as a fresh start), re-enabling
// a disabled feed clears counters, metadata overrides apply
// unconditionally, and a relaxed pruning policy restores previously
// archived items up to the new quota (a stricter policy is left to the
// regular prune phase).
func (r *StateReconciler) reconcileExisting(ctx context.Context, feed db.Feed, fc *config.FeedConfig) error {
	since, err := fc.ParsedSince()
	if err != nil {
		return err
	}
	oldSince, oldKeepLast := feed.Since, feed.KeepLast

	newURL := ""
	if fc.URL != nil {
		newURL = *fc.URL
	}
	urlChanged := feed.SourceURL == nil || newURL != *feed.SourceURL
	wasDisabled := !feed.IsEnabled

	updated := feed
	updated.SourceURL = fc.URL
	if fc.URL != nil {
		updated.ResolvedURL = *fc.URL
	}
	if urlChanged && !fc.IsManual() {
		resolved, classified, err := r.extractor.DetermineFetchStrategy(ctx, feed.ID, updated.ResolvedURL, fc.YtArgsSlice())
		if err != nil {
			return err
		}
		updated.ResolvedURL = resolved
		updated.SourceType = classified
	}
	updated.IsEnabled = true
	updated.Since = since
	updated.KeepLast = fc.KeepLast
	updated.TranscriptLang = fc.TranscriptLang
	if fc.Metadata != nil {
		applyMetadataToFeed(&updated, fc.Metadata)
	}
	if urlChanged || wasDisabled {
		updated.ConsecutiveFailures = 0
		lastSync := db.MinSyncDate
		if since != nil {
			lastSync = *since
		}
		updated.LastSuccessfulSync = &lastSync
	}
	if err := r.feeds.UpsertFeed(ctx, updated); err != nil {
		return err
	}

	return r.reconcilePruningPolicy(ctx, feed.ID, oldSince, oldKeepLast, fc, since)
}

// reconcilePruningPolicy restores previously ARCHIVED items when the
// feed's retention policy has relaxed: an expanded (or removed) since
// cutoff, or a raised keep_last. A stricter policy is left alone —
// the regular prune phase will catch up on its own next run.
func (r *StateReconciler) reconcilePruningPolicy(ctx context.Context, feedID string, oldSince *time.Time, oldKeepLast *int, fc *config.FeedConfig, newSince *time.Time) error {
	sinceRelaxed := false
	switch {
	case oldSince == nil:
		sinceRelaxed = false // already unbounded, nothing to relax
	case newSince == nil:
		sinceRelaxed = true // bound removed entirely
	case newSince.Before(*oldSince):
		sinceRelaxed = true
	}

	keepLastRelaxed := false
	switch {
	case oldKeepLast == nil:
		keepLastRelaxed = false
	case fc.KeepLast == nil:
		keepLastRelaxed = true
	case *fc.KeepLast > *oldKeepLast:
		keepLastRelaxed = true
	}

	if !sinceRelaxed && !keepLastRelaxed {
		return nil
	}

	archived, err := r.downloads.GetDownloadsByStatus(ctx, db.StatusArchived, db.GetDownloadsByStatusOpts{FeedID: feedID, Limit: -1})
	if err != nil {
		return err
	}
	if len(archived) == 0 {
		return nil
	}

	candidates := make([]db.Download, 0, len(archived))
	for _, d := range archived {
		if newSince != nil && d.Published.Before(*newSince) {
			continue
		}
		candidates = append(candidates, d)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Published.After(candidates[j].Published) })

	if fc.KeepLast != nil {
		active := 0
		for _, st := range []db.DownloadStatus{db.StatusDownloaded, db.StatusQueued, db.StatusUpcoming} {
			n, err := r.downloads.CountDownloadsByStatus(ctx, st, feedID)
			if err != nil {
				return err
			}
			active += n
		}
		headroom := *fc.KeepLast - active
		if headroom <= 0 {
			return nil
		}
		if headroom < len(candidates) {
			candidates = candidates[:headroom]
		}
	}

	ids := make([]string, len(candidates))
	for i, d := range candidates {
		ids[i] = d.ID
	}
	fromStatus := db.StatusArchived
	_, err = r.downloads.RequeueDownloads(ctx, feedID, ids, &fromStatus)
	return err
}

func applyMetadataToFeed(feed *db.Feed, o *config.MetadataOverride) {
	if o.Title != nil {
		feed.Title = *o.Title
	}
	if o.Subtitle != nil {
		feed.Subtitle = *o.Subtitle
	}
	if o.Description != nil {
		feed.Description = *o.Description
	}
	if o.Language != nil {
		feed.Language = *o.Language
	}
	if o.Author != nil {
		feed.Author = *o.Author
	}
	if o.AuthorEmail != nil {
		feed.AuthorEmail = *o.AuthorEmail
	}
	if o.Category != nil {
		feed.Category = *o.Category
	}
	if o.PodcastType != nil {
		feed.PodcastType = db.PodcastType(*o.PodcastType)
	}
	if o.Explicit != nil {
		feed.Explicit = *o.Explicit
	}
	if o.RemoteImageURL != nil {
		feed.RemoteImageURL = o.RemoteImageURL
	}
	if o.TranscriptLang != nil {
		feed.TranscriptLang = *o.TranscriptLang
	}
	if o.TranscriptSourcePriority != nil {
		prio := make([]db.TranscriptSource, len(o.TranscriptSourcePriority))
		for i, s := range o.TranscriptSourcePriority {
			prio[i] = db.TranscriptSource(s)
		}
		feed.TranscriptSourcePriority = prio
	}
}
