// Package apperrors defines the typed error hierarchy shared across the
// pipeline, stores, and HTTP surface.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors used with errors.Is at call sites that only care about
// the category, not the feed/download identity attached to it.
var (
	ErrFeedNotFound     = errors.New("feed not found")
	ErrDownloadNotFound = errors.New("download not found")
	ErrFiltered         = errors.New("item filtered by handler, not an error")
	ErrUnsupportedURL   = errors.New("unsupported url for manual submission")
	ErrUnavailable      = errors.New("item temporarily unavailable")
)

// FeedNotFoundError is returned by FeedStore lookups for an unknown feed id.
type FeedNotFoundError struct {
	FeedID string
}

func (e *FeedNotFoundError) Error() string {
	return fmt.Sprintf("feed %q not found", e.FeedID)
}

func (e *FeedNotFoundError) Unwrap() error { return ErrFeedNotFound }

// DownloadNotFoundError is returned by DownloadStore lookups for an unknown
// (feed_id, id) pair.
type DownloadNotFoundError struct {
	FeedID     string
	DownloadID string
}

func (e *DownloadNotFoundError) Error() string {
	return fmt.Sprintf("download %q in feed %q not found", e.DownloadID, e.FeedID)
}

func (e *DownloadNotFoundError) Unwrap() error { return ErrDownloadNotFound }

// DatabaseOperationError wraps a failure from a FeedStore/DownloadStore
// mutation or query, carrying enough context for structured logging.
type DatabaseOperationError struct {
	Op     string
	FeedID string
	Err    error
}

func (e *DatabaseOperationError) Error() string {
	if e.FeedID != "" {
		return fmt.Sprintf("database operation %q failed for feed %q: %v", e.Op, e.FeedID, e.Err)
	}
	return fmt.Sprintf("database operation %q failed: %v", e.Op, e.Err)
}

func (e *DatabaseOperationError) Unwrap() error { return e.Err }

// FileOperationError wraps a filesystem failure (write, rename, delete).
type FileOperationError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileOperationError) Error() string {
	return fmt.Sprintf("file operation %q on %q failed: %v", e.Op, e.Path, e.Err)
}

func (e *FileOperationError) Unwrap() error { return e.Err }

// FFProbeError wraps a failed ffprobe invocation.
type FFProbeError struct {
	Args []string
	Err  error
}

func (e *FFProbeError) Error() string {
	return fmt.Sprintf("ffprobe %v failed: %v", e.Args, e.Err)
}

func (e *FFProbeError) Unwrap() error { return e.Err }

// FFmpegError wraps a failed ffmpeg invocation.
type FFmpegError struct {
	Args []string
	Err  error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg %v failed: %v", e.Args, e.Err)
}

func (e *FFmpegError) Unwrap() error { return e.Err }

// YtdlpAPIError wraps a non-zero exit or unparsable output from the
// external media-extractor subprocess.
type YtdlpAPIError struct {
	FeedID string
	URL    string
	Err    error
}

func (e *YtdlpAPIError) Error() string {
	return fmt.Sprintf("yt-dlp failed for feed %q url %q: %v", e.FeedID, e.URL, e.Err)
}

func (e *YtdlpAPIError) Unwrap() error { return e.Err }

// ImageDownloadError wraps a failure fetching or converting a feed/episode
// image, whether from a direct HTTP fetch or a wrapped YtdlpAPIError.
type ImageDownloadError struct {
	FeedID string
	URL    string
	Err    error
}

func (e *ImageDownloadError) Error() string {
	return fmt.Sprintf("image download failed for feed %q url %q: %v", e.FeedID, e.URL, e.Err)
}

func (e *ImageDownloadError) Unwrap() error { return e.Err }

// DownloadError is a per-item failure raised by the downloader phase. It
// wraps the extractor-level error plus the identity needed to log and
// count it without aborting the batch.
type DownloadError struct {
	FeedID     string
	DownloadID string
	Err        error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %q in feed %q failed: %v", e.DownloadID, e.FeedID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// EnqueueError is a feed-level failure of the enqueue phase.
type EnqueueError struct {
	FeedID string
	Err    error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("enqueue failed for feed %q: %v", e.FeedID, e.Err)
}

func (e *EnqueueError) Unwrap() error { return e.Err }

// PruneError is a feed-level failure of the prune phase.
type PruneError struct {
	FeedID string
	Err    error
}

func (e *PruneError) Error() string {
	return fmt.Sprintf("prune failed for feed %q: %v", e.FeedID, e.Err)
}

func (e *PruneError) Unwrap() error { return e.Err }

// RSSGenerationError is a feed-level failure of the RSS generation phase.
type RSSGenerationError struct {
	FeedID string
	Err    error
}

func (e *RSSGenerationError) Error() string {
	return fmt.Sprintf("rss generation failed for feed %q: %v", e.FeedID, e.Err)
}

func (e *RSSGenerationError) Unwrap() error { return e.Err }

// ManualSubmissionUnsupportedURLError is returned when the extractor
// refuses a manually submitted URL outright.
type ManualSubmissionUnsupportedURLError struct {
	URL string
	Err error
}

func (e *ManualSubmissionUnsupportedURLError) Error() string {
	return fmt.Sprintf("unsupported url for manual submission %q: %v", e.URL, e.Err)
}

func (e *ManualSubmissionUnsupportedURLError) Unwrap() error { return errors.Join(ErrUnsupportedURL, e.Err) }

// ManualSubmissionUnavailableError is returned when a manually submitted
// URL yields no result, or an UPCOMING (not-yet-available) result.
type ManualSubmissionUnavailableError struct {
	URL string
	Err error
}

func (e *ManualSubmissionUnavailableError) Error() string {
	return fmt.Sprintf("manual submission %q unavailable: %v", e.URL, e.Err)
}

func (e *ManualSubmissionUnavailableError) Unwrap() error { return errors.Join(ErrUnavailable, e.Err) }

// StateReconciliationError is a per-feed failure during startup/reload
// reconciliation; it never aborts reconciliation of other feeds.
type StateReconciliationError struct {
	FeedID string
	Err    error
}

func (e *StateReconciliationError) Error() string {
	return fmt.Sprintf("state reconciliation failed for feed %q: %v", e.FeedID, e.Err)
}

func (e *StateReconciliationError) Unwrap() error { return e.Err }

// ConfigLoadError is fatal at startup.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("failed to load config %q: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }
