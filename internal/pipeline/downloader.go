package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"anypod/internal/apperrors"
	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/media"
	"anypod/internal/ytdlp"
)

// Downloader drains a feed's QUEUED set to DOWNLOADED, with per-item
// error isolation.
type Downloader struct {
	downloads   *db.DownloadStore
	extractor   *ytdlp.ExtractorCore
	enqueuer    *Enqueuer
	images      *media.ImageDownloader
	transcripts *media.TranscriptDownloader
	files       *media.FileManager
	paths       *media.PathManager
}

func NewDownloader(downloads *db.DownloadStore, extractor *ytdlp.ExtractorCore, enqueuer *Enqueuer, images *media.ImageDownloader, transcripts *media.TranscriptDownloader, files *media.FileManager, paths *media.PathManager) *Downloader {
	return &Downloader{
		downloads: downloads, extractor: extractor, enqueuer: enqueuer,
		images: images, transcripts: transcripts, files: files, paths: paths,
	}
}

// DownloadResult is the outcome of draining one feed's QUEUED set.
type DownloadResult struct {
	SuccessCount int
	FailureCount int
	Errors       []error
}

// DownloadQueued processes QUEUED items for feed, ordered by
// published ASC, id ASC. limit=-1 means unlimited.
func (d *Downloader) DownloadQueued(ctx context.Context, feed db.Feed, fc *config.FeedConfig, cookiesPath string, limit int) DownloadResult {
	log := slog.With("feed_id", feed.ID)
	result := DownloadResult{}

	items, err := d.downloads.GetDownloadsByStatus(ctx, db.StatusQueued, db.GetDownloadsByStatusOpts{FeedID: feed.ID, Limit: limit})
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	for _, item := range items {
		if err := d.downloadOne(ctx, feed, fc, item, cookiesPath); err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, &apperrors.DownloadError{FeedID: feed.ID, DownloadID: item.ID, Err: err})
			log.Warn("download failed", "download_id", item.ID, "error", err)
			continue
		}
		result.SuccessCount++
	}
	return result
}

func (d *Downloader) downloadOne(ctx context.Context, feed db.Feed, fc *config.FeedConfig, item db.Download, cookiesPath string) error {
	log := slog.With("feed_id", feed.ID, "download_id", item.ID)

	// Step 1: best-effort metadata refresh; failures never abort the
	// download itself.
	if refreshed, err := d.enqueuer.RefreshMetadata(ctx, item, fc, cookiesPath, false); err == nil && len(refreshed.ChangedFields) > 0 {
		item = refreshed.Download
	} else if err != nil {
		log.Debug("metadata refresh skipped", "error", err)
	}

	// Step 2: fetch media.
	targetDir := d.paths.FeedDir(feed.ID)
	finalPath, err := d.extractor.DownloadMediaToFile(ctx, item, fc.YtArgsSlice(), targetDir, cookiesPath)
	if err != nil {
		if _, _, _, bumpErr := d.downloads.BumpRetries(ctx, feed.ID, item.ID, err.Error(), fc.EffectiveMaxErrors()); bumpErr != nil {
			return bumpErr
		}
		return err
	}

	// Steps 3-4: best-effort thumbnail and transcript, fetched
	// concurrently since neither depends on the other.
	var g errgroup.Group
	g.Go(func() error {
		if item.RemoteThumbnailURL == nil {
			return nil
		}
		thumbPath := d.paths.ThumbnailPath(feed.ID, item.ID, "jpg")
		ext, err := d.images.Fetch(ctx, *item.RemoteThumbnailURL, thumbPath)
		if err != nil {
			log.Debug("thumbnail fetch skipped", "error", err)
			return nil
		}
		if updErr := d.downloads.UpdateDownload(ctx, feed.ID, item.ID, db.DownloadUpdate{ThumbnailExt: &ext}); updErr != nil {
			log.Warn("recording thumbnail extension failed", "error", updErr)
		}
		return nil
	})
	g.Go(func() error {
		d.fetchTranscript(ctx, feed, item)
		return nil
	})
	g.Wait()

	size, err := d.files.Size(finalPath)
	if err != nil {
		return err
	}
	return d.downloads.MarkAsDownloaded(ctx, feed.ID, item.ID, item.Ext, size)
}

func (d *Downloader) fetchTranscript(ctx context.Context, feed db.Feed, item db.Download) {
	priority := feed.TranscriptSourcePriority
	if len(priority) == 0 {
		return
	}
	lang := feed.TranscriptLang
	if lang == "" {
		lang = "en"
	}

	dstNoExt := d.paths.FeedDir(feed.ID) + "/" + item.ID
	for _, source := range priority {
		ok, err := d.transcripts.Fetch(ctx, item.SourceURL, lang, source, dstNoExt)
		if err != nil {
			slog.Debug("transcript fetch attempt failed", "feed_id", feed.ID, "download_id", item.ID, "source", source, "error", err)
			continue
		}
		if ok {
			ext := "vtt"
			src := source
			if err := d.downloads.UpdateDownload(ctx, feed.ID, item.ID, db.DownloadUpdate{
				TranscriptExt:    &ext,
				TranscriptLang:   &lang,
				TranscriptSource: &src,
			}); err != nil {
				slog.Warn("recording transcript metadata failed", "feed_id", feed.ID, "download_id", item.ID, "error", err)
			}
			return
		}
	}
}
