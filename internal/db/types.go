// Package db implements the persisted Feed/Download/AppState model and
// the only legal paths for mutating it (FeedStore, DownloadStore).
package db

import "time"

// DownloadStatus is the lifecycle state of a single Download, per the
// state machine.
type DownloadStatus string

const (
	StatusUpcoming   DownloadStatus = "UPCOMING"
	StatusQueued     DownloadStatus = "QUEUED"
	StatusDownloaded DownloadStatus = "DOWNLOADED"
	StatusError      DownloadStatus = "ERROR"
	StatusSkipped    DownloadStatus = "SKIPPED"
	StatusArchived   DownloadStatus = "ARCHIVED"
)

func (s DownloadStatus) String() string { return string(s) }

// Valid reports whether s is one of the recognized lifecycle states.
func (s DownloadStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusQueued, StatusDownloaded, StatusError, StatusSkipped, StatusArchived:
		return true
	default:
		return false
	}
}

// SourceType classifies the kind of URL a feed was configured with.
type SourceType string

const (
	SourceChannel     SourceType = "channel"
	SourcePlaylist    SourceType = "playlist"
	SourceSingleVideo SourceType = "single_video"
	SourceManual      SourceType = "manual"
	SourceUnknown     SourceType = "unknown"
)

// PodcastType is the iTunes podcast-type taxonomy value.
type PodcastType string

const (
	PodcastEpisodic PodcastType = "episodic"
	PodcastSerial   PodcastType = "serial"
)

// TranscriptSource records where a transcript came from, if any.
type TranscriptSource string

const (
	TranscriptCreator      TranscriptSource = "creator"
	TranscriptAuto         TranscriptSource = "auto"
	TranscriptNotAvailable TranscriptSource = "not_available"
)

// Feed is one configured source, one row per `id`.
type Feed struct {
	ID         string
	SourceURL  *string
	ResolvedURL string
	SourceType SourceType

	IsEnabled           bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastSuccessfulSync  *time.Time
	LastFailedSync      *time.Time
	LastRSSGeneration   *time.Time
	ConsecutiveFailures int

	Since     *time.Time
	KeepLast  *int

	Title                       string
	Subtitle                    string
	Description                 string
	Language                    string
	Author                      string
	AuthorEmail                 string
	Category                    string
	PodcastType                 PodcastType
	Explicit                    bool
	RemoteImageURL              *string
	ImageExt                    *string
	TranscriptSourcePriority    []TranscriptSource
	TranscriptLang              string

	TotalDownloads int
}

// Download is one discovered item belonging to a Feed, keyed by (FeedID, ID).
type Download struct {
	FeedID string
	ID     string

	SourceURL   string
	Title       string
	Description string
	Published   time.Time
	Duration    float64
	Ext         string
	MimeType    string
	Filesize    int64

	Status        DownloadStatus
	Retries       int
	LastError     *string
	DiscoveredAt  time.Time
	UpdatedAt     time.Time
	DownloadedAt  *time.Time
	PlaylistIndex *int
	DownloadLogs  string

	RemoteThumbnailURL *string
	ThumbnailExt       *string
	TranscriptExt      *string
	TranscriptLang     *string
	TranscriptSource   *TranscriptSource
}

// Key returns the composite primary key, used for map-based dedup in the
// enqueuer and for equality comparisons in tests.
func (d Download) Key() string { return d.FeedID + "\x00" + d.ID }

// MinSyncDate is the sentinel `last_successful_sync` seeded for newly
// configured feeds with no `since` override — far enough in the past
// that any upstream publication date is considered "not yet seen".
var MinSyncDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
