package ytdlp

import (
	"context"
	"strings"
	"time"

	"anypod/internal/db"
)

func init() { register(youtubeHandler{}) }

type youtubeHandler struct{}

func (youtubeHandler) Matches(sourceURL string) bool {
	return hostContains(sourceURL, "youtube.com", "youtu.be")
}

func (youtubeHandler) ClassifySource(ctx context.Context, core *ExtractorCore, sourceURL string) (string, db.SourceType, error) {
	lower := strings.ToLower(sourceURL)
	switch {
	case strings.Contains(lower, "/watch") || strings.Contains(lower, "youtu.be/"):
		return sourceURL, db.SourceSingleVideo, nil
	case strings.Contains(lower, "/playlist") || strings.Contains(lower, "list="):
		return sourceURL, db.SourcePlaylist, nil
	default:
		// A bare channel root resolves to its "videos" tab.
		resolved := strings.TrimRight(sourceURL, "/")
		if !strings.HasSuffix(resolved, "/videos") {
			resolved += "/videos"
		}
		return resolved, db.SourceChannel, nil
	}
}

func (youtubeHandler) ToDownload(ctx context.Context, core *ExtractorCore, feedID string, entry RawEntry) (db.Download, error) {
	now := time.Now().UTC()
	d := db.Download{
		FeedID:       feedID,
		ID:           entry.ID,
		SourceURL:    canonicalURL(entry, "https://www.youtube.com/watch?v="+entry.ID),
		Title:        entry.Title,
		Description:  entry.Description,
		Ext:          entry.Ext,
		Duration:     entry.Duration,
		Filesize:     entry.Filesize,
		DiscoveredAt: now,
		UpdatedAt:    now,
	}
	d.MimeType = mimeFromExt(entry.Ext)
	d.Published = publishedFromEntry(entry)

	if entry.LiveStatus == "is_upcoming" || entry.LiveStatus == "is_live" {
		d.Ext = "live"
		d.Duration = 0
		d.Status = db.StatusUpcoming
		d.MimeType = ""
		return d, nil
	}

	if d.Duration == 0 {
		if probed, err := core.FFProbe().Duration(ctx, d.SourceURL); err == nil {
			d.Duration = probed
		}
	}
	d.Status = db.StatusQueued
	return d, nil
}
