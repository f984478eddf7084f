// Package ytdlp wraps the external media-extractor subprocess (yt-dlp by
// default) and the per-site handlers that turn its raw JSON output into
// db.Download rows.
package ytdlp

import (
	"time"

	"anypod/internal/db"
)

// RawEntry is one JSON object emitted by the extractor's --print-json
// output. Field presence and meaning vary by site; handlers pick what
// they need and ignore the rest.
type RawEntry struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	WebpageURL  string  `json:"webpage_url"`
	OriginalURL string  `json:"original_url"`
	Ext         string  `json:"ext"`
	Duration    float64 `json:"duration"`
	Filesize    int64   `json:"filesize"`
	Timestamp   float64 `json:"timestamp"` // unix epoch seconds
	UploadDate  string  `json:"upload_date"`
	IsLive      bool    `json:"is_live"`
	WasLive     bool    `json:"was_live"`
	LiveStatus  string  `json:"live_status"` // "is_upcoming", "is_live", "was_live", "not_live"
	Thumbnail   string  `json:"thumbnail"`
	PlaylistIndex *int  `json:"playlist_index"`
	Extractor   string  `json:"extractor"`
	ExtractorKey string `json:"extractor_key"`
	Availability string `json:"availability"` // "needs_auth", "private", "subscriber_only", etc.
	WebpageURLDomain string `json:"webpage_url_domain"`

	// Site-specific extras, kept generic.
	Channel    string `json:"channel"`
	ChannelID  string `json:"channel_id"`
	UploaderID string `json:"uploader_id"`
}

// FetchOpts bundles the parameters FetchNewDownloadsMetadata needs.
type FetchOpts struct {
	FeedID                   string
	SourceType               db.SourceType
	ResolvedURL              string
	UserArgs                 []string
	FetchSince               *time.Time
	KeepLast                 *int
	TranscriptLang           string
	TranscriptSourcePriority []db.TranscriptSource
	CookiesPath              string
}
