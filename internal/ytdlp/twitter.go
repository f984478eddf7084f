package ytdlp

import (
	"context"
	"time"

	"anypod/internal/apperrors"
	"anypod/internal/db"
)

func init() { register(twitterHandler{}) }

type twitterHandler struct{}

func (twitterHandler) Matches(sourceURL string) bool {
	return hostContains(sourceURL, "twitter.com", "x.com")
}

func (twitterHandler) ClassifySource(ctx context.Context, core *ExtractorCore, sourceURL string) (string, db.SourceType, error) {
	if hostContains(sourceURL, "/status/") {
		return sourceURL, db.SourceSingleVideo, nil
	}
	return sourceURL, db.SourceChannel, nil
}

// ToDownload drops tweets with no video/audio attachment.
func (twitterHandler) ToDownload(ctx context.Context, core *ExtractorCore, feedID string, entry RawEntry) (db.Download, error) {
	if entry.Ext == "" {
		return db.Download{}, apperrors.ErrFiltered
	}

	now := time.Now().UTC()
	d := db.Download{
		FeedID:       feedID,
		ID:           entry.ID,
		SourceURL:    canonicalURL(entry, ""),
		Title:        entry.Title,
		Description:  entry.Description,
		Ext:          entry.Ext,
		MimeType:     mimeFromExt(entry.Ext),
		Duration:     entry.Duration,
		Filesize:     entry.Filesize,
		Published:    publishedFromEntry(entry),
		DiscoveredAt: now,
		UpdatedAt:    now,
		Status:       db.StatusQueued,
	}
	return d, nil
}
