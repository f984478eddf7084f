package rss

import (
	"context"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"anypod/internal/db"
	"anypod/internal/media"
)

func newTestStores(t *testing.T) (*db.FeedStore, *db.DownloadStore) {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return db.NewFeedStore(conn), db.NewDownloadStore(conn)
}

func TestGenerator_RenderRoundTripsThroughGofeed(t *testing.T) {
	feeds, downloads := newTestStores(t)
	paths := media.NewPathManager(t.TempDir())
	files := media.NewFileManager(paths)
	gen := NewGenerator(downloads, files, paths, "https://anypod.example.com")

	thumbExt := "jpg"
	feed := db.Feed{
		ID:          "my-show",
		Title:       "My Show",
		Subtitle:    "A show about things",
		Description: "Longer description of the show.",
		Language:    "en-us",
		Author:      "Jane Doe",
		AuthorEmail: "jane@example.com",
		Category:    "Technology",
		PodcastType: db.PodcastEpisodic,
		Explicit:    true,
	}

	ctx := context.Background()
	if err := feeds.UpsertFeed(ctx, feed); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}

	published := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"ep-1", "ep-2"} {
		err := downloads.UpsertDownload(ctx, db.Download{
			FeedID:       feed.ID,
			ID:           id,
			SourceURL:    "https://example.com/" + id,
			Title:        "Episode " + id,
			Description:  "Episode description",
			Published:    published.Add(time.Duration(i) * 24 * time.Hour),
			Duration:     125,
			Ext:          "mp3",
			MimeType:     "audio/mpeg",
			Filesize:     123456,
			Status:       db.StatusDownloaded,
			ThumbnailExt: &thumbExt,
		})
		if err != nil {
			t.Fatalf("UpsertDownload(%s): %v", id, err)
		}
	}

	xmlBytes, err := gen.GetFeedXML(ctx, feed)
	if err != nil {
		t.Fatalf("GetFeedXML: %v", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(xmlBytes))
	if err != nil {
		t.Fatalf("gofeed failed to parse generated RSS: %v\n%s", err, xmlBytes)
	}

	if parsed.Title != feed.Title {
		t.Errorf("Title = %q, want %q", parsed.Title, feed.Title)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(parsed.Items))
	}
	// Newest published first.
	if parsed.Items[0].Title != "Episode ep-2" {
		t.Errorf("Items[0].Title = %q, want newest item first", parsed.Items[0].Title)
	}
	if len(parsed.Items[0].Enclosures) != 1 {
		t.Fatalf("len(Enclosures) = %d, want 1", len(parsed.Items[0].Enclosures))
	}
	wantURL := "https://anypod.example.com/media/my-show/ep-2.mp3"
	if parsed.Items[0].Enclosures[0].URL != wantURL {
		t.Errorf("Enclosure URL = %q, want %q", parsed.Items[0].Enclosures[0].URL, wantURL)
	}
}

func TestGenerator_RenderExcludesNonDownloadedItems(t *testing.T) {
	feeds, downloads := newTestStores(t)
	paths := media.NewPathManager(t.TempDir())
	files := media.NewFileManager(paths)
	gen := NewGenerator(downloads, files, paths, "https://anypod.example.com")

	feed := db.Feed{ID: "my-show", Title: "My Show"}
	ctx := context.Background()
	if err := feeds.UpsertFeed(ctx, feed); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}

	if err := downloads.UpsertDownload(ctx, db.Download{
		FeedID: feed.ID, ID: "queued-1", SourceURL: "https://example.com/q1",
		Title: "Queued", Published: time.Now(), Ext: "mp3", MimeType: "audio/mpeg",
		Status: db.StatusQueued,
	}); err != nil {
		t.Fatalf("UpsertDownload: %v", err)
	}

	xmlBytes, err := gen.GetFeedXML(ctx, feed)
	if err != nil {
		t.Fatalf("GetFeedXML: %v", err)
	}
	parsed, err := gofeed.NewParser().ParseString(string(xmlBytes))
	if err != nil {
		t.Fatalf("gofeed parse: %v", err)
	}
	if len(parsed.Items) != 0 {
		t.Errorf("len(Items) = %d, want 0 (QUEUED items must not appear in the feed)", len(parsed.Items))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{65, "1:05"},
		{3661, "1:01:01"},
		{0, "0:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
