package reconcile

import (
	"context"
	"testing"
	"time"

	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/media"
	"anypod/internal/pipeline"
	"anypod/internal/ytdlp"
)

func newTestReconciler(t *testing.T) (*StateReconciler, *db.FeedStore, *db.DownloadStore) {
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
	pruner := pipeline.NewPruner(feeds, downloads, files, paths)
	extractor := ytdlp.NewExtractorCore("/nonexistent/yt-dlp-binary", "/nonexistent/ffprobe-binary")

	return NewStateReconciler(feeds, downloads, pruner, extractor), feeds, downloads
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestReconcileStartupState_CreatesNewFeed(t *testing.T) {
	reconciler, feeds, _ := newTestReconciler(t)
	ctx := context.Background()

	configs := map[string]*config.FeedConfig{
		"new-feed": {ID: "new-feed", URL: strPtr("https://example.com/channel"), Schedule: "@daily"},
	}

	ready := reconciler.ReconcileStartupState(ctx, configs)
	if len(ready) != 1 || ready[0] != "new-feed" {
		t.Fatalf("ready = %v, want [new-feed]", ready)
	}

	feed, err := feeds.GetFeedByID(ctx, "new-feed")
	if err != nil {
		t.Fatalf("GetFeedByID: %v", err)
	}
	if !feed.IsEnabled {
		t.Error("newly created feed should be enabled")
	}
	if feed.LastSuccessfulSync == nil || !feed.LastSuccessfulSync.Equal(db.MinSyncDate) {
		t.Errorf("LastSuccessfulSync = %v, want MinSyncDate (no since override)", feed.LastSuccessfulSync)
	}
}

func TestReconcileStartupState_ClassifiesNewFeedSourceType(t *testing.T) {
	reconciler, feeds, _ := newTestReconciler(t)
	ctx := context.Background()

	configs := map[string]*config.FeedConfig{
		"yt-channel": {ID: "yt-channel", URL: strPtr("https://www.youtube.com/@someone"), Schedule: "@daily"},
		"manual-feed": {ID: "manual-feed", Schedule: "manual"},
	}

	ready := reconciler.ReconcileStartupState(ctx, configs)
	if len(ready) != 2 {
		t.Fatalf("ready = %v, want both feeds reconciled", ready)
	}

	channel, err := feeds.GetFeedByID(ctx, "yt-channel")
	if err != nil {
		t.Fatalf("GetFeedByID: %v", err)
	}
	if channel.SourceType != db.SourceChannel {
		t.Errorf("SourceType = %v, want SourceChannel for a bare channel root", channel.SourceType)
	}
	if channel.ResolvedURL != "https://www.youtube.com/@someone/videos" {
		t.Errorf("ResolvedURL = %q, want the channel's videos tab", channel.ResolvedURL)
	}

	manual, err := feeds.GetFeedByID(ctx, "manual-feed")
	if err != nil {
		t.Fatalf("GetFeedByID: %v", err)
	}
	if manual.SourceType != db.SourceManual {
		t.Errorf("SourceType = %v, want SourceManual for a manual-only feed", manual.SourceType)
	}
}

func TestReconcileStartupState_ArchivesRemovedFeed(t *testing.T) {
	reconciler, feeds, downloads := newTestReconciler(t)
	ctx := context.Background()

	if err := feeds.UpsertFeed(ctx, db.Feed{ID: "old-feed", ResolvedURL: "https://example.com", IsEnabled: true}); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}
	if err := downloads.UpsertDownload(ctx, db.Download{
		FeedID: "old-feed", ID: "ep-1", SourceURL: "https://example.com/ep-1",
		Published: time.Now(), Ext: "mp3", MimeType: "audio/mpeg", Status: db.StatusQueued,
	}); err != nil {
		t.Fatalf("UpsertDownload: %v", err)
	}

	ready := reconciler.ReconcileStartupState(ctx, map[string]*config.FeedConfig{})
	if len(ready) != 0 {
		t.Errorf("ready = %v, want empty (feed removed from config)", ready)
	}

	d, err := downloads.GetDownloadByID(ctx, "old-feed", "ep-1")
	if err != nil {
		t.Fatalf("GetDownloadByID: %v", err)
	}
	if d.Status != db.StatusArchived {
		t.Errorf("Status = %v, want ARCHIVED after feed removal", d.Status)
	}
}

func TestReconcileStartupState_URLChangeResetsFailureCounter(t *testing.T) {
	reconciler, feeds, _ := newTestReconciler(t)
	ctx := context.Background()

	lastSync := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := feeds.UpsertFeed(ctx, db.Feed{
		ID: "feed-1", SourceURL: strPtr("https://old.example.com"), ResolvedURL: "https://old.example.com",
		IsEnabled: true, ConsecutiveFailures: 5, LastSuccessfulSync: &lastSync,
	}); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}

	configs := map[string]*config.FeedConfig{
		"feed-1": {ID: "feed-1", URL: strPtr("https://new.example.com"), Schedule: "@daily"},
	}
	ready := reconciler.ReconcileStartupState(ctx, configs)
	if len(ready) != 1 {
		t.Fatalf("ready = %v, want [feed-1]", ready)
	}

	feed, err := feeds.GetFeedByID(ctx, "feed-1")
	if err != nil {
		t.Fatalf("GetFeedByID: %v", err)
	}
	if feed.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 after URL change", feed.ConsecutiveFailures)
	}
	if feed.LastSuccessfulSync == nil || !feed.LastSuccessfulSync.Equal(db.MinSyncDate) {
		t.Errorf("LastSuccessfulSync = %v, want reset to MinSyncDate", feed.LastSuccessfulSync)
	}
}

func TestReconcilePruningPolicy_RestoresArchivedOnRelaxedSince(t *testing.T) {
	reconciler, feeds, downloads := newTestReconciler(t)
	ctx := context.Background()

	oldSince := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := feeds.UpsertFeed(ctx, db.Feed{
		ID: "feed-1", ResolvedURL: "https://example.com", IsEnabled: true, Since: &oldSince,
	}); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}
	if err := downloads.UpsertDownload(ctx, db.Download{
		FeedID: "feed-1", ID: "old-ep", SourceURL: "https://example.com/old-ep",
		Published: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Ext: "mp3", MimeType: "audio/mpeg",
		Status: db.StatusArchived,
	}); err != nil {
		t.Fatalf("UpsertDownload: %v", err)
	}

	// Removing the since bound entirely relaxes the policy.
	configs := map[string]*config.FeedConfig{
		"feed-1": {ID: "feed-1", URL: strPtr("https://example.com"), Schedule: "@daily"},
	}
	ready := reconciler.ReconcileStartupState(ctx, configs)
	if len(ready) != 1 {
		t.Fatalf("ready = %v, want [feed-1]", ready)
	}

	d, err := downloads.GetDownloadByID(ctx, "feed-1", "old-ep")
	if err != nil {
		t.Fatalf("GetDownloadByID: %v", err)
	}
	if d.Status != db.StatusQueued {
		t.Errorf("Status = %v, want QUEUED after since relaxation restores it", d.Status)
	}
}

func TestReconcilePruningPolicy_LeavesArchivedAloneOnStricterPolicy(t *testing.T) {
	reconciler, feeds, downloads := newTestReconciler(t)
	ctx := context.Background()

	if err := feeds.UpsertFeed(ctx, db.Feed{
		ID: "feed-1", ResolvedURL: "https://example.com", IsEnabled: true, KeepLast: intPtr(10),
	}); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}
	if err := downloads.UpsertDownload(ctx, db.Download{
		FeedID: "feed-1", ID: "old-ep", SourceURL: "https://example.com/old-ep",
		Published: time.Now(), Ext: "mp3", MimeType: "audio/mpeg", Status: db.StatusArchived,
	}); err != nil {
		t.Fatalf("UpsertDownload: %v", err)
	}

	// Lowering keep_last is a stricter policy; archived items must stay put.
	configs := map[string]*config.FeedConfig{
		"feed-1": {ID: "feed-1", URL: strPtr("https://example.com"), Schedule: "@daily", KeepLast: intPtr(5)},
	}
	reconciler.ReconcileStartupState(ctx, configs)

	d, err := downloads.GetDownloadByID(ctx, "feed-1", "old-ep")
	if err != nil {
		t.Fatalf("GetDownloadByID: %v", err)
	}
	if d.Status != db.StatusArchived {
		t.Errorf("Status = %v, want ARCHIVED to remain untouched under a stricter policy", d.Status)
	}
}
