package ytdlp

import (
	"context"
	"time"

	"anypod/internal/apperrors"
	"anypod/internal/db"
	"anypod/internal/ytdlp/generichandler"
)

// genericHandlerInstance is the catch-all Handler consulted when no
// site-specific handler claims a URL.
var genericHandlerInstance = genericHandler{enricher: generichandler.NewEnricher()}

type genericHandler struct {
	enricher *generichandler.Enricher
}

func (genericHandler) Matches(string) bool { return true }

func (genericHandler) ClassifySource(ctx context.Context, core *ExtractorCore, sourceURL string) (string, db.SourceType, error) {
	return sourceURL, db.SourceSingleVideo, nil
}

// ToDownload maps a generic entry, enriching title/description with a
// direct page fetch when the extractor's own fields are thin.
func (h genericHandler) ToDownload(ctx context.Context, core *ExtractorCore, feedID string, entry RawEntry) (db.Download, error) {
	if entry.Ext == "" {
		return db.Download{}, apperrors.ErrFiltered
	}

	now := time.Now().UTC()
	sourceURL := canonicalURL(entry, "")
	d := db.Download{
		FeedID:       feedID,
		ID:           entry.ID,
		SourceURL:    sourceURL,
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

	if (d.Title == "" || d.Description == "") && sourceURL != "" {
		if meta, err := h.enricher.Fetch(ctx, sourceURL); err == nil {
			if d.Title == "" {
				d.Title = meta.Title
			}
			if d.Description == "" {
				d.Description = meta.Description
			}
			if meta.ImageURL != "" {
				d.RemoteThumbnailURL = &meta.ImageURL
			}
		}
	}

	return d, nil
}
