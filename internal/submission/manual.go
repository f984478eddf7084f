// Package submission implements manual URL submission for manual-only
// feeds.
package submission

import (
	"context"

	"anypod/internal/apperrors"
	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/ytdlp"
)

// Service accepts a single URL for a manual feed and produces a QUEUED
// Download by invoking the extractor with SINGLE_VIDEO semantics.
type Service struct {
	downloads *db.DownloadStore
	extractor *ytdlp.ExtractorCore
}

func NewService(downloads *db.DownloadStore, extractor *ytdlp.ExtractorCore) *Service {
	return &Service{downloads: downloads, extractor: extractor}
}

// Outcome classifies the result of a manual submission.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeUnsupportedURL  Outcome = "unsupported_url"
	OutcomeUnavailable     Outcome = "unavailable"
)

// Result is the outcome of Submit.
type Result struct {
	Outcome  Outcome
	Download db.Download
	IsNew    bool
}

// Submit fetches metadata for url as a SINGLE_VIDEO and upserts the
// resulting Download for feedID.
func (s *Service) Submit(ctx context.Context, feedID string, fc *config.FeedConfig, url string) (Result, error) {
	_, sourceType, err := s.extractor.DetermineFetchStrategy(ctx, feedID, url, fc.YtArgsSlice())
	if err != nil {
		return Result{Outcome: OutcomeUnsupportedURL}, &apperrors.ManualSubmissionUnsupportedURLError{URL: url, Err: err}
	}
	if sourceType != db.SourceSingleVideo {
		sourceType = db.SourceSingleVideo
	}

	results, err := s.extractor.FetchNewDownloadsMetadata(ctx, ytdlp.FetchOpts{
		FeedID:         feedID,
		SourceType:     db.SourceSingleVideo,
		ResolvedURL:    url,
		UserArgs:       fc.YtArgsSlice(),
		TranscriptLang: fc.TranscriptLang,
	})
	if err != nil {
		return Result{Outcome: OutcomeUnsupportedURL}, &apperrors.ManualSubmissionUnsupportedURLError{URL: url, Err: err}
	}
	if len(results) == 0 {
		return Result{Outcome: OutcomeUnavailable}, &apperrors.ManualSubmissionUnavailableError{URL: url, Err: apperrors.ErrUnavailable}
	}

	d := results[0]
	if d.Status == db.StatusUpcoming {
		return Result{Outcome: OutcomeUnavailable, Download: d}, &apperrors.ManualSubmissionUnavailableError{URL: url, Err: apperrors.ErrUnavailable}
	}

	_, err = s.downloads.GetDownloadByID(ctx, feedID, d.ID)
	isNew := err != nil
	d.Status = db.StatusQueued
	if err := s.downloads.UpsertDownload(ctx, d); err != nil {
		return Result{}, err
	}

	return Result{Outcome: OutcomeSuccess, Download: d, IsNew: isNew}, nil
}
