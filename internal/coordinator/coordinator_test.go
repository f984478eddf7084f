package coordinator

import (
	"context"
	"testing"
	"time"

	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/media"
	"anypod/internal/pipeline"
	"anypod/internal/rss"
	"anypod/internal/ytdlp"
)

func TestProcessFeed_EnqueueFailureStillRunsLaterPhasesAndMarksFailure(t *testing.T) {
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	feeds := db.NewFeedStore(conn)
	downloads := db.NewDownloadStore(conn)
	paths := media.NewPathManager(t.TempDir())
	files := media.NewFileManager(paths)

	// A deliberately nonexistent binary makes every extractor call fail
	// fast, exercising the Enqueue-failure path without real subprocesses.
	extractor := ytdlp.NewExtractorCore("/nonexistent/yt-dlp-binary", "/nonexistent/ffprobe-binary")
	enqueuer := pipeline.NewEnqueuer(downloads, extractor, nil, paths)
	downloader := pipeline.NewDownloader(downloads, extractor, enqueuer, nil, nil, files, paths)
	pruner := pipeline.NewPruner(feeds, downloads, files, paths)
	rssGen := rss.NewGenerator(downloads, files, paths, "https://anypod.example.com")

	coord := NewDataCoordinator(feeds, enqueuer, downloader, pruner, rssGen)

	ctx := context.Background()
	lastSync := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := db.Feed{
		ID: "feed-1", ResolvedURL: "https://example.com/channel", SourceType: db.SourceChannel,
		IsEnabled: true, LastSuccessfulSync: &lastSync, Title: "Feed One",
	}
	if err := feeds.UpsertFeed(ctx, feed); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}

	fc := &config.FeedConfig{ID: "feed-1", URL: strPtr("https://example.com/channel"), Schedule: "@daily"}

	results, err := coord.ProcessFeed(ctx, "feed-1", fc, "")
	if err != nil {
		t.Fatalf("ProcessFeed returned unexpected top-level error: %v", err)
	}

	if results.Enqueue.Success {
		t.Error("Enqueue.Success = true, want false (extractor binary does not exist)")
	}
	if results.OverallSuccess {
		t.Error("OverallSuccess = true, want false since Enqueue failed")
	}
	// Download/Prune/RSS must still have run despite the Enqueue failure.
	if !results.RSS.Success {
		t.Errorf("RSS.Success = false, want true: %v", results.RSS.Errors)
	}

	updated, err := feeds.GetFeedByID(ctx, "feed-1")
	if err != nil {
		t.Fatalf("GetFeedByID: %v", err)
	}
	if updated.LastSuccessfulSync == nil || !updated.LastSuccessfulSync.Equal(lastSync) {
		t.Errorf("LastSuccessfulSync = %v, want unchanged %v after Enqueue failure", updated.LastSuccessfulSync, lastSync)
	}
	if updated.LastRSSGeneration == nil {
		t.Error("LastRSSGeneration should be set: RSS phase succeeded independently of Enqueue")
	}
}

func strPtr(s string) *string { return &s }
