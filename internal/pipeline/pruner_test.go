package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anypod/internal/db"
	"anypod/internal/media"
)

func newTestPruner(t *testing.T) (*Pruner, *db.FeedStore, *db.DownloadStore, *media.PathManager) {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	feeds := db.NewFeedStore(conn)
	downloads := db.NewDownloadStore(conn)
	paths := media.NewPathManager(t.TempDir())
	files := media.NewFileManager(paths)

	return NewPruner(feeds, downloads, files, paths), feeds, downloads, paths
}

func TestPruneFeedDownloads_KeepLastArchivesOldestExcess(t *testing.T) {
	pruner, feeds, downloads, paths := newTestPruner(t)
	ctx := context.Background()

	if err := feeds.UpsertFeed(ctx, db.Feed{ID: "feed-1", ResolvedURL: "https://example.com", IsEnabled: true}); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"ep-1", "ep-2", "ep-3"} {
		path := paths.MediaPath("feed-1", id, "mp3")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if err := downloads.UpsertDownload(ctx, db.Download{
			FeedID: "feed-1", ID: id, SourceURL: "https://example.com/" + id,
			Published: base.Add(time.Duration(i) * 24 * time.Hour), Ext: "mp3", MimeType: "audio/mpeg",
			Status: db.StatusDownloaded,
		}); err != nil {
			t.Fatalf("UpsertDownload(%s): %v", id, err)
		}
	}

	keepLast := 2
	result := pruner.PruneFeedDownloads(ctx, "feed-1", &keepLast, nil)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.ArchivedCount != 1 {
		t.Errorf("ArchivedCount = %d, want 1 (oldest of 3 beyond keep_last=2)", result.ArchivedCount)
	}
	if result.FilesDeletedCount != 1 {
		t.Errorf("FilesDeletedCount = %d, want 1", result.FilesDeletedCount)
	}

	oldest, err := downloads.GetDownloadByID(ctx, "feed-1", "ep-1")
	if err != nil {
		t.Fatalf("GetDownloadByID(ep-1): %v", err)
	}
	if oldest.Status != db.StatusArchived {
		t.Errorf("ep-1 Status = %v, want ARCHIVED", oldest.Status)
	}

	newest, err := downloads.GetDownloadByID(ctx, "feed-1", "ep-3")
	if err != nil {
		t.Fatalf("GetDownloadByID(ep-3): %v", err)
	}
	if newest.Status != db.StatusDownloaded {
		t.Errorf("ep-3 Status = %v, want DOWNLOADED (kept)", newest.Status)
	}
}

func TestPruneFeedDownloads_SinceCutoffArchivesOlderItems(t *testing.T) {
	pruner, feeds, downloads, _ := newTestPruner(t)
	ctx := context.Background()

	if err := feeds.UpsertFeed(ctx, db.Feed{ID: "feed-1", ResolvedURL: "https://example.com", IsEnabled: true}); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := downloads.UpsertDownload(ctx, db.Download{
		FeedID: "feed-1", ID: "old-ep", SourceURL: "https://example.com/old-ep",
		Published: cutoff.Add(-48 * time.Hour), Ext: "mp3", MimeType: "audio/mpeg", Status: db.StatusQueued,
	}); err != nil {
		t.Fatalf("UpsertDownload: %v", err)
	}
	if err := downloads.UpsertDownload(ctx, db.Download{
		FeedID: "feed-1", ID: "new-ep", SourceURL: "https://example.com/new-ep",
		Published: cutoff.Add(48 * time.Hour), Ext: "mp3", MimeType: "audio/mpeg", Status: db.StatusQueued,
	}); err != nil {
		t.Fatalf("UpsertDownload: %v", err)
	}

	result := pruner.PruneFeedDownloads(ctx, "feed-1", nil, &cutoff)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.ArchivedCount != 1 {
		t.Errorf("ArchivedCount = %d, want 1", result.ArchivedCount)
	}

	old, err := downloads.GetDownloadByID(ctx, "feed-1", "old-ep")
	if err != nil {
		t.Fatalf("GetDownloadByID(old-ep): %v", err)
	}
	if old.Status != db.StatusArchived {
		t.Errorf("old-ep Status = %v, want ARCHIVED", old.Status)
	}

	newItem, err := downloads.GetDownloadByID(ctx, "feed-1", "new-ep")
	if err != nil {
		t.Fatalf("GetDownloadByID(new-ep): %v", err)
	}
	if newItem.Status != db.StatusQueued {
		t.Errorf("new-ep Status = %v, want QUEUED (published after cutoff)", newItem.Status)
	}
}

func TestArchiveFeed_ArchivesAllNonTerminalAndDisables(t *testing.T) {
	pruner, feeds, downloads, _ := newTestPruner(t)
	ctx := context.Background()

	if err := feeds.UpsertFeed(ctx, db.Feed{ID: "feed-1", ResolvedURL: "https://example.com", IsEnabled: true}); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}
	if err := downloads.UpsertDownload(ctx, db.Download{
		FeedID: "feed-1", ID: "ep-1", SourceURL: "https://example.com/ep-1",
		Published: time.Now(), Ext: "mp3", MimeType: "audio/mpeg", Status: db.StatusQueued,
	}); err != nil {
		t.Fatalf("UpsertDownload: %v", err)
	}

	if err := pruner.ArchiveFeed(ctx, "feed-1"); err != nil {
		t.Fatalf("ArchiveFeed: %v", err)
	}

	feed, err := feeds.GetFeedByID(ctx, "feed-1")
	if err != nil {
		t.Fatalf("GetFeedByID: %v", err)
	}
	if feed.IsEnabled {
		t.Error("IsEnabled = true, want false after ArchiveFeed")
	}

	d, err := downloads.GetDownloadByID(ctx, "feed-1", "ep-1")
	if err != nil {
		t.Fatalf("GetDownloadByID: %v", err)
	}
	if d.Status != db.StatusArchived {
		t.Errorf("Status = %v, want ARCHIVED", d.Status)
	}
}
