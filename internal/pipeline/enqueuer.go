// Package pipeline implements three of the four per-feed phases
// (Enqueue, Download, Prune) driven by the coordinator; the fourth, RSS
// generation, lives in internal/rss.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"anypod/internal/apperrors"
	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/media"
	"anypod/internal/ytdlp"
)

// Enqueuer reconciles a feed's upstream source with persisted state,
// producing newly QUEUED items without ever re-queuing DOWNLOADED or
// ARCHIVED items.
type Enqueuer struct {
	downloads   *db.DownloadStore
	extractor   *ytdlp.ExtractorCore
	transcripts *media.TranscriptDownloader
	paths       *media.PathManager
}

func NewEnqueuer(downloads *db.DownloadStore, extractor *ytdlp.ExtractorCore, transcripts *media.TranscriptDownloader, paths *media.PathManager) *Enqueuer {
	return &Enqueuer{downloads: downloads, extractor: extractor, transcripts: transcripts, paths: paths}
}

// EnqueueResult is the outcome of one EnqueueFeed call.
type EnqueueResult struct {
	NewlyQueuedCount        int
	LastSuccessfulSyncCandidate time.Time
	Errors                  []error
}

// EnqueueFeed runs both enqueue steps: re-resolving stale UPCOMING items,
// then fetching new metadata since fetchSince.
func (e *Enqueuer) EnqueueFeed(ctx context.Context, feed db.Feed, fc *config.FeedConfig, fetchSince, fetchUntil time.Time) (EnqueueResult, error) {
	started := time.Now().UTC()
	result := EnqueueResult{LastSuccessfulSyncCandidate: started}
	log := slog.With("feed_id", feed.ID)

	if err := e.resolveUpcoming(ctx, feed, fc); err != nil {
		log.Warn("resolving upcoming items encountered errors", "error", err)
		result.Errors = append(result.Errors, err)
	}

	n, err := e.fetchAndMerge(ctx, feed, fc, fetchSince, fetchUntil)
	result.NewlyQueuedCount = n
	if err != nil {
		result.Errors = append(result.Errors, &apperrors.EnqueueError{FeedID: feed.ID, Err: err})
		return result, result.Errors[len(result.Errors)-1]
	}
	return result, nil
}

// resolveUpcoming re-fetches every UPCOMING item as SINGLE_VIDEO; a
// re-fetch that now yields a VOD promotes it to QUEUED. Failures and
// ambiguous results (zero or multiple matches) bump retries instead of
// aborting the batch.
func (e *Enqueuer) resolveUpcoming(ctx context.Context, feed db.Feed, fc *config.FeedConfig) error {
	upcoming, err := e.downloads.GetDownloadsByStatus(ctx, db.StatusUpcoming, db.GetDownloadsByStatusOpts{FeedID: feed.ID, Limit: -1})
	if err != nil {
		return err
	}

	var lastErr error
	for _, item := range upcoming {
		results, err := e.extractor.FetchNewDownloadsMetadata(ctx, ytdlp.FetchOpts{
			FeedID:       feed.ID,
			SourceType:   db.SourceSingleVideo,
			ResolvedURL:  item.SourceURL,
			UserArgs:     fc.YtArgsSlice(),
			TranscriptLang: fc.TranscriptLang,
		})
		if err != nil || len(results) != 1 {
			if _, _, _, bumpErr := e.downloads.BumpRetries(ctx, feed.ID, item.ID, "upcoming re-fetch ambiguous or failed", fc.EffectiveMaxErrors()); bumpErr != nil {
				lastErr = bumpErr
			}
			continue
		}

		refreshed := results[0]
		if refreshed.Status == db.StatusUpcoming {
			continue // still not a VOD
		}
		if err := e.downloads.MarkAsQueuedFromUpcoming(ctx, feed.ID, item.ID); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// fetchAndMerge fetches new metadata for the feed's resolved source and
// merges it per the dedup rules: new items upsert as-is; DOWNLOADED/
// ARCHIVED items are left alone; ERROR or UPCOMING items that the fetch
// now reports QUEUED are overwritten (retries reset via upsert).
func (e *Enqueuer) fetchAndMerge(ctx context.Context, feed db.Feed, fc *config.FeedConfig, fetchSince, fetchUntil time.Time) (int, error) {
	fetched, err := e.extractor.FetchNewDownloadsMetadata(ctx, ytdlp.FetchOpts{
		FeedID:                   feed.ID,
		SourceType:               feed.SourceType,
		ResolvedURL:              feed.ResolvedURL,
		UserArgs:                 fc.YtArgsSlice(),
		FetchSince:               &fetchSince,
		KeepLast:                 fc.KeepLast,
		TranscriptLang:           fc.TranscriptLang,
		TranscriptSourcePriority: nil,
	})
	if err != nil {
		return 0, err
	}

	newlyQueued := 0
	for _, item := range fetched {
		existing, err := e.downloads.GetDownloadByID(ctx, feed.ID, item.ID)
		if err != nil {
			if _, ok := asNotFound(err); ok {
				if err := e.downloads.UpsertDownload(ctx, item); err != nil {
					return newlyQueued, err
				}
				if item.Status == db.StatusQueued {
					newlyQueued++
				}
				continue
			}
			return newlyQueued, err
		}

		switch existing.Status {
		case db.StatusDownloaded, db.StatusArchived:
			continue
		case db.StatusError, db.StatusUpcoming:
			if item.Status == db.StatusQueued {
				if err := e.downloads.UpsertDownload(ctx, item); err != nil {
					return newlyQueued, err
				}
				newlyQueued++
			}
		default:
			// QUEUED/SKIPPED: leave as-is; re-upserting would double count.
		}
	}
	return newlyQueued, nil
}

func asNotFound(err error) (*apperrors.DownloadNotFoundError, bool) {
	nf, ok := err.(*apperrors.DownloadNotFoundError)
	return nf, ok
}

// RefreshResult describes a single-item metadata refresh.
type RefreshResult struct {
	Download                      db.Download
	ChangedFields                 []string
	ThumbnailURLChanged           bool
	TranscriptMetadataChanged     bool
}

// RefreshMetadata re-fetches a single download's metadata and writes
// only the scalar fields that changed, preserving lifecycle fields
// (status, filesize, and duration if already known). When
// refreshTranscript is set, it also re-runs the transcript fetch
// against the feed's configured source priority and records whatever
// transcript metadata changed.
func (e *Enqueuer) RefreshMetadata(ctx context.Context, d db.Download, fc *config.FeedConfig, cookiesPath string, refreshTranscript bool) (RefreshResult, error) {
	results, err := e.extractor.FetchNewDownloadsMetadata(ctx, ytdlp.FetchOpts{
		FeedID:         d.FeedID,
		SourceType:     db.SourceSingleVideo,
		ResolvedURL:    d.SourceURL,
		UserArgs:       fc.YtArgsSlice(),
		TranscriptLang: fc.TranscriptLang,
		CookiesPath:    cookiesPath,
	})
	if err != nil || len(results) != 1 {
		return RefreshResult{}, apperrors.ErrUnavailable
	}
	fresh := results[0]

	update := db.DownloadUpdate{}
	var changed []string
	res := RefreshResult{Download: d}

	if fresh.Title != d.Title {
		update.Title = &fresh.Title
		changed = append(changed, "title")
	}
	if fresh.Description != d.Description {
		update.Description = &fresh.Description
		changed = append(changed, "description")
	}
	if !fresh.Published.IsZero() && !fresh.Published.Equal(d.Published) {
		update.Published = &fresh.Published
		changed = append(changed, "published")
	}
	if d.Duration == 0 && fresh.Duration != 0 {
		update.Duration = &fresh.Duration
		changed = append(changed, "duration")
	}
	if fresh.RemoteThumbnailURL != nil && (d.RemoteThumbnailURL == nil || *fresh.RemoteThumbnailURL != *d.RemoteThumbnailURL) {
		update.RemoteThumbnailURL = fresh.RemoteThumbnailURL
		changed = append(changed, "remote_thumbnail_url")
		res.ThumbnailURLChanged = true
	}

	if refreshTranscript {
		e.refreshTranscript(ctx, d, fc, &update, &changed, &res)
	}

	if len(changed) == 0 {
		return res, nil
	}
	if err := e.downloads.UpdateDownload(ctx, d.FeedID, d.ID, update); err != nil {
		return RefreshResult{}, err
	}
	res.ChangedFields = changed
	return res, nil
}

// refreshTranscript re-runs the transcript fetch for d against the
// feed's configured source priority, writing only the fields that
// changed from what's already recorded. Absence of a transcript from
// every prioritized source is left untouched, not treated as a
// regression.
func (e *Enqueuer) refreshTranscript(ctx context.Context, d db.Download, fc *config.FeedConfig, update *db.DownloadUpdate, changed *[]string, res *RefreshResult) {
	if len(fc.TranscriptSourcePriority) == 0 {
		return
	}
	lang := fc.TranscriptLang
	if lang == "" {
		lang = "en"
	}
	dstNoExt := e.paths.FeedDir(d.FeedID) + "/" + d.ID

	for _, priority := range fc.TranscriptSourcePriority {
		source := db.TranscriptSource(priority)
		ok, err := e.transcripts.Fetch(ctx, d.SourceURL, lang, source, dstNoExt)
		if err != nil {
			slog.Debug("transcript refresh attempt failed", "feed_id", d.FeedID, "download_id", d.ID, "source", source, "error", err)
			continue
		}
		if !ok {
			continue
		}
		ext := "vtt"
		if d.TranscriptExt == nil || *d.TranscriptExt != ext {
			update.TranscriptExt = &ext
			*changed = append(*changed, "transcript_ext")
			res.TranscriptMetadataChanged = true
		}
		if d.TranscriptLang == nil || *d.TranscriptLang != lang {
			update.TranscriptLang = &lang
			*changed = append(*changed, "transcript_lang")
			res.TranscriptMetadataChanged = true
		}
		if d.TranscriptSource == nil || *d.TranscriptSource != source {
			update.TranscriptSource = &source
			*changed = append(*changed, "transcript_source")
			res.TranscriptMetadataChanged = true
		}
		return
	}
}
