package ytdlp

import (
	"context"
	"time"

	"anypod/internal/apperrors"
	"anypod/internal/db"
)

func init() { register(patreonHandler{}) }

type patreonHandler struct{}

func (patreonHandler) Matches(sourceURL string) bool {
	return hostContains(sourceURL, "patreon.com")
}

func (patreonHandler) ClassifySource(ctx context.Context, core *ExtractorCore, sourceURL string) (string, db.SourceType, error) {
	if hostContains(sourceURL, "/posts/") {
		return sourceURL, db.SourceSingleVideo, nil
	}
	return sourceURL, db.SourceChannel, nil
}

// ToDownload drops posts with no extension (text-only posts, locked
// posts visible only as a teaser) as filtered, not an error.
func (patreonHandler) ToDownload(ctx context.Context, core *ExtractorCore, feedID string, entry RawEntry) (db.Download, error) {
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

	if d.Duration == 0 && d.SourceURL != "" {
		if probed, err := core.FFProbe().Duration(ctx, d.SourceURL); err == nil {
			d.Duration = probed
		}
	}
	return d, nil
}
