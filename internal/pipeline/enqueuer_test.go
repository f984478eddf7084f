package pipeline

import (
	"context"
	"testing"

	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/media"
	"anypod/internal/ytdlp"
)

func newTestEnqueuer(t *testing.T) (*Enqueuer, *db.DownloadStore) {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	downloads := db.NewDownloadStore(conn)
	paths := media.NewPathManager(t.TempDir())
	files := media.NewFileManager(paths)
	transcripts := media.NewTranscriptDownloader(files, "/nonexistent/yt-dlp-binary")

	return NewEnqueuer(downloads, nil, transcripts, paths), downloads
}

func TestRefreshTranscript_NoSourcePriorityIsNoOp(t *testing.T) {
	e, _ := newTestEnqueuer(t)
	d := db.Download{FeedID: "feed-1", ID: "ep-1", SourceURL: "https://example.com/ep-1"}
	fc := &config.FeedConfig{ID: "feed-1"}

	update := db.DownloadUpdate{}
	var changed []string
	res := RefreshResult{Download: d}

	e.refreshTranscript(context.Background(), d, fc, &update, &changed, &res)

	if len(changed) != 0 || res.TranscriptMetadataChanged {
		t.Fatalf("expected no-op with empty source priority, got changed=%v res=%+v", changed, res)
	}
}

func TestRefreshTranscript_FetchFailureLeavesMetadataUnchanged(t *testing.T) {
	e, _ := newTestEnqueuer(t)
	d := db.Download{FeedID: "feed-1", ID: "ep-1", SourceURL: "https://example.com/ep-1"}
	fc := &config.FeedConfig{
		ID:                       "feed-1",
		TranscriptLang:           "en",
		TranscriptSourcePriority: []string{"creator", "auto"},
	}

	update := db.DownloadUpdate{}
	var changed []string
	res := RefreshResult{Download: d}

	e.refreshTranscript(context.Background(), d, fc, &update, &changed, &res)

	if len(changed) != 0 || res.TranscriptMetadataChanged {
		t.Fatalf("expected no change when the extractor binary can't produce a transcript, got changed=%v res=%+v", changed, res)
	}
	if update.TranscriptExt != nil || update.TranscriptLang != nil || update.TranscriptSource != nil {
		t.Fatalf("expected update to remain empty, got %+v", update)
	}
}

func TestRefreshMetadata_ExtractorFailureReturnsUnavailable(t *testing.T) {
	downloads := func() *db.DownloadStore {
		conn, err := db.Open(":memory:")
		if err != nil {
			t.Fatalf("db.Open: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return db.NewDownloadStore(conn)
	}()
	paths := media.NewPathManager(t.TempDir())
	files := media.NewFileManager(paths)
	transcripts := media.NewTranscriptDownloader(files, "/nonexistent/yt-dlp-binary")
	extractor := ytdlp.NewExtractorCore("/nonexistent/yt-dlp-binary", "/nonexistent/ffprobe-binary")

	e := NewEnqueuer(downloads, extractor, transcripts, paths)
	d := db.Download{FeedID: "feed-1", ID: "ep-1", SourceURL: "https://example.com/ep-1"}
	fc := &config.FeedConfig{ID: "feed-1", TranscriptSourcePriority: []string{"creator"}}

	_, err := e.RefreshMetadata(context.Background(), d, fc, "", true)
	if err == nil {
		t.Fatal("expected an error from an unreachable extractor binary")
	}
}
