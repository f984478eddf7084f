package pipeline

import (
	"context"
	"log/slog"
	"time"

	"anypod/internal/apperrors"
	"anypod/internal/db"
	"anypod/internal/media"
)

// Pruner enforces retention policy: archiving excess or stale downloads
// and deleting their media.
type Pruner struct {
	feeds     *db.FeedStore
	downloads *db.DownloadStore
	files     *media.FileManager
	paths     *media.PathManager
}

func NewPruner(feeds *db.FeedStore, downloads *db.DownloadStore, files *media.FileManager, paths *media.PathManager) *Pruner {
	return &Pruner{feeds: feeds, downloads: downloads, files: files, paths: paths}
}

// PruneResult is the outcome of one PruneFeedDownloads call.
type PruneResult struct {
	ArchivedCount     int
	FilesDeletedCount int
	Errors            []error
}

// PruneFeedDownloads archives downloads beyond keepLast and/or older
// than pruneBeforeDate (either may be absent), deleting DOWNLOADED
// media first. Individual failures are logged and do not abort the
// batch.
func (p *Pruner) PruneFeedDownloads(ctx context.Context, feedID string, keepLast *int, pruneBeforeDate *time.Time) PruneResult {
	log := slog.With("feed_id", feedID)
	result := PruneResult{}

	candidates := map[string]db.Download{}

	if keepLast != nil && *keepLast > 0 {
		byKeepLast, err := p.downloads.GetDownloadsToPruneByKeepLast(ctx, feedID, *keepLast)
		if err != nil {
			result.Errors = append(result.Errors, &apperrors.PruneError{FeedID: feedID, Err: err})
		}
		for _, d := range byKeepLast {
			candidates[d.Key()] = d
		}
	}

	if pruneBeforeDate != nil {
		bySince, err := p.downloads.GetDownloadsToPruneBySince(ctx, feedID, *pruneBeforeDate)
		if err != nil {
			result.Errors = append(result.Errors, &apperrors.PruneError{FeedID: feedID, Err: err})
		}
		for _, d := range bySince {
			candidates[d.Key()] = d
		}
	}

	for _, d := range candidates {
		if err := p.archiveOne(ctx, d, &result); err != nil {
			result.Errors = append(result.Errors, &apperrors.PruneError{FeedID: feedID, Err: err})
			log.Warn("pruning candidate failed", "download_id", d.ID, "error", err)
		}
	}
	return result
}

func (p *Pruner) archiveOne(ctx context.Context, d db.Download, result *PruneResult) error {
	if d.Status == db.StatusDownloaded {
		path := p.paths.MediaPath(d.FeedID, d.ID, d.Ext)
		deleted, err := p.files.Delete(path)
		if err != nil {
			return err
		}
		if deleted {
			result.FilesDeletedCount++
		}
	}
	if err := p.downloads.ArchiveDownload(ctx, d.FeedID, d.ID); err != nil {
		return err
	}
	result.ArchivedCount++
	return nil
}

var nonTerminalStatuses = []db.DownloadStatus{
	db.StatusDownloaded, db.StatusQueued, db.StatusUpcoming, db.StatusError,
}

// ArchiveFeed archives every non-terminal item, deletes their files, and
// disables the feed. Called by the reconciler when a feed is removed
// from configuration.
func (p *Pruner) ArchiveFeed(ctx context.Context, feedID string) error {
	var toArchive []db.Download
	for _, status := range nonTerminalStatuses {
		items, err := p.downloads.GetDownloadsByStatus(ctx, status, db.GetDownloadsByStatusOpts{FeedID: feedID, Limit: -1})
		if err != nil {
			return &apperrors.PruneError{FeedID: feedID, Err: err}
		}
		toArchive = append(toArchive, items...)
	}

	var lastErr error
	for _, d := range toArchive {
		if d.Status == db.StatusDownloaded {
			path := p.paths.MediaPath(d.FeedID, d.ID, d.Ext)
			if _, err := p.files.Delete(path); err != nil {
				lastErr = err
				continue
			}
		}
		if err := p.downloads.ArchiveDownload(ctx, feedID, d.ID); err != nil {
			lastErr = err
		}
	}

	if err := p.feeds.SetFeedEnabled(ctx, feedID, false); err != nil {
		return &apperrors.PruneError{FeedID: feedID, Err: err}
	}
	if lastErr != nil {
		return &apperrors.PruneError{FeedID: feedID, Err: lastErr}
	}
	return nil
}
