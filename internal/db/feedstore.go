package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"anypod/internal/apperrors"
)

const feedColumns = `id, source_url, resolved_url, source_type, is_enabled, created_at, updated_at,
	last_successful_sync, last_failed_sync, last_rss_generation, consecutive_failures,
	since, keep_last, title, subtitle, description, language, author, author_email, category,
	podcast_type, explicit, total_downloads, remote_image_url, image_ext, transcript_lang,
	transcript_source_priority`

// FeedStore is the only legal path for mutating Feed rows.
type FeedStore struct {
	db *sql.DB
}

func NewFeedStore(conn *sql.DB) *FeedStore { return &FeedStore{db: conn} }

func scanFeed(row interface {
	Scan(dest ...any) error
}) (Feed, error) {
	var f Feed
	var sourceURL, lastSuccessfulSync, lastFailedSync, lastRSSGeneration sql.NullString
	var since, remoteImageURL, imageExt sql.NullString
	var keepLast sql.NullInt64
	var createdAt, updatedAt string
	var explicit int
	var transcriptPriority string

	err := row.Scan(
		&f.ID, &sourceURL, &f.ResolvedURL, &f.SourceType, &f.IsEnabled, &createdAt, &updatedAt,
		&lastSuccessfulSync, &lastFailedSync, &lastRSSGeneration, &f.ConsecutiveFailures,
		&since, &keepLast, &f.Title, &f.Subtitle, &f.Description, &f.Language, &f.Author,
		&f.AuthorEmail, &f.Category, &f.PodcastType, &explicit, &f.TotalDownloads,
		&remoteImageURL, &imageExt, &f.TranscriptLang, &transcriptPriority,
	)
	if err != nil {
		return Feed{}, err
	}

	f.SourceURL = strOrNil(sourceURL)
	f.Explicit = explicit != 0
	f.TranscriptSourcePriority = splitTranscriptSources(transcriptPriority)
	f.RemoteImageURL = strOrNil(remoteImageURL)
	f.ImageExt = strOrNil(imageExt)
	f.KeepLast = intOrNil(keepLast)

	if f.CreatedAt, err = strToTime(createdAt); err != nil {
		return Feed{}, fmt.Errorf("parse created_at: %w", err)
	}
	if f.UpdatedAt, err = strToTime(updatedAt); err != nil {
		return Feed{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if f.LastSuccessfulSync, err = strPtrToTimePtr(lastSuccessfulSync); err != nil {
		return Feed{}, fmt.Errorf("parse last_successful_sync: %w", err)
	}
	if f.LastFailedSync, err = strPtrToTimePtr(lastFailedSync); err != nil {
		return Feed{}, fmt.Errorf("parse last_failed_sync: %w", err)
	}
	if f.LastRSSGeneration, err = strPtrToTimePtr(lastRSSGeneration); err != nil {
		return Feed{}, fmt.Errorf("parse last_rss_generation: %w", err)
	}
	if f.Since, err = strPtrToTimePtr(since); err != nil {
		return Feed{}, fmt.Errorf("parse since: %w", err)
	}
	return f, nil
}

// UpsertFeed inserts or fully overwrites a Feed by id. created_at is
// preserved on conflict; updated_at is left to the trigger.
func (s *FeedStore) UpsertFeed(ctx context.Context, f Feed) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed (id, source_url, resolved_url, source_type, is_enabled, created_at, updated_at,
			last_successful_sync, last_failed_sync, last_rss_generation, consecutive_failures,
			since, keep_last, title, subtitle, description, language, author, author_email, category,
			podcast_type, explicit, total_downloads, remote_image_url, image_ext, transcript_lang,
			transcript_source_priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_url = excluded.source_url,
			resolved_url = excluded.resolved_url,
			source_type = excluded.source_type,
			is_enabled = excluded.is_enabled,
			last_successful_sync = excluded.last_successful_sync,
			last_failed_sync = excluded.last_failed_sync,
			last_rss_generation = excluded.last_rss_generation,
			consecutive_failures = excluded.consecutive_failures,
			since = excluded.since,
			keep_last = excluded.keep_last,
			title = excluded.title,
			subtitle = excluded.subtitle,
			description = excluded.description,
			language = excluded.language,
			author = excluded.author,
			author_email = excluded.author_email,
			category = excluded.category,
			podcast_type = excluded.podcast_type,
			explicit = excluded.explicit,
			total_downloads = excluded.total_downloads,
			remote_image_url = excluded.remote_image_url,
			image_ext = excluded.image_ext,
			transcript_lang = excluded.transcript_lang,
			transcript_source_priority = excluded.transcript_source_priority
	`,
		f.ID, nullStr(f.SourceURL), f.ResolvedURL, f.SourceType, f.IsEnabled,
		timeToStr(f.CreatedAt), timeToStr(f.UpdatedAt),
		nullTimePtr(f.LastSuccessfulSync), nullTimePtr(f.LastFailedSync), nullTimePtr(f.LastRSSGeneration),
		f.ConsecutiveFailures, nullTimePtr(f.Since), nullInt(f.KeepLast),
		f.Title, f.Subtitle, f.Description, f.Language, f.Author, f.AuthorEmail, f.Category,
		f.PodcastType, boolToInt(f.Explicit), f.TotalDownloads, nullStr(f.RemoteImageURL), nullStr(f.ImageExt),
		f.TranscriptLang, joinTranscriptSources(f.TranscriptSourcePriority),
	)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "upsert_feed", FeedID: f.ID, Err: err}
	}
	return nil
}

// GetFeedByID returns the feed, or a *FeedNotFoundError.
func (s *FeedStore) GetFeedByID(ctx context.Context, id string) (Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feed WHERE id = ?`, id)
	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return Feed{}, &apperrors.FeedNotFoundError{FeedID: id}
	}
	if err != nil {
		return Feed{}, &apperrors.DatabaseOperationError{Op: "get_feed_by_id", FeedID: id, Err: err}
	}
	return f, nil
}

// GetFeeds returns all feeds, optionally filtered by enabled state,
// ordered by id ascending.
func (s *FeedStore) GetFeeds(ctx context.Context, enabled *bool) ([]Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feed`
	args := []any{}
	if enabled != nil {
		query += ` WHERE is_enabled = ?`
		args = append(args, boolToInt(*enabled))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apperrors.DatabaseOperationError{Op: "get_feeds", Err: err}
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, &apperrors.DatabaseOperationError{Op: "get_feeds", Err: err}
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// SetFeedEnabled toggles the feed's enabled state.
func (s *FeedStore) SetFeedEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feed SET is_enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "set_feed_enabled", FeedID: id, Err: err}
	}
	return requireRowsAffected(res, id, "set_feed_enabled")
}

// FeedMetadataUpdate carries the optional overridable podcast metadata
// fields; unset (nil) fields are left untouched — update_feed_metadata
// is a no-op if every field is nil.
type FeedMetadataUpdate struct {
	Title                    *string
	Subtitle                 *string
	Description              *string
	Language                 *string
	Author                   *string
	AuthorEmail              *string
	Category                 *string
	PodcastType              *PodcastType
	Explicit                 *bool
	RemoteImageURL           *string
	ImageExt                 *string
	TranscriptLang           *string
	TranscriptSourcePriority *[]TranscriptSource
}

func (u FeedMetadataUpdate) isEmpty() bool {
	return u.Title == nil && u.Subtitle == nil && u.Description == nil && u.Language == nil &&
		u.Author == nil && u.AuthorEmail == nil && u.Category == nil && u.PodcastType == nil &&
		u.Explicit == nil && u.RemoteImageURL == nil && u.ImageExt == nil &&
		u.TranscriptLang == nil && u.TranscriptSourcePriority == nil
}

// UpdateFeedMetadata partially updates overridable metadata fields. A
// no-op (no query issued) when all fields are nil.
func (s *FeedStore) UpdateFeedMetadata(ctx context.Context, id string, u FeedMetadataUpdate) error {
	if u.isEmpty() {
		return nil
	}

	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Subtitle != nil {
		add("subtitle", *u.Subtitle)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Language != nil {
		add("language", *u.Language)
	}
	if u.Author != nil {
		add("author", *u.Author)
	}
	if u.AuthorEmail != nil {
		add("author_email", *u.AuthorEmail)
	}
	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.PodcastType != nil {
		add("podcast_type", *u.PodcastType)
	}
	if u.Explicit != nil {
		add("explicit", boolToInt(*u.Explicit))
	}
	if u.RemoteImageURL != nil {
		add("remote_image_url", *u.RemoteImageURL)
	}
	if u.ImageExt != nil {
		add("image_ext", *u.ImageExt)
	}
	if u.TranscriptLang != nil {
		add("transcript_lang", *u.TranscriptLang)
	}
	if u.TranscriptSourcePriority != nil {
		add("transcript_source_priority", joinTranscriptSources(*u.TranscriptSourcePriority))
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE feed SET %s WHERE id = ?`, joinSet(sets))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "update_feed_metadata", FeedID: id, Err: err}
	}
	return requireRowsAffected(res, id, "update_feed_metadata")
}

// MarkSyncSuccess advances last_successful_sync. If at is nil, now is
// used. Monotone non-decreasing: never moves backwards.
func (s *FeedStore) MarkSyncSuccess(ctx context.Context, id string, at *time.Time) error {
	ts := time.Now().UTC()
	if at != nil {
		ts = *at
	}

	res, err := s.db.ExecContext(ctx, `UPDATE feed SET consecutive_failures = 0 WHERE id = ?`, id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "mark_sync_success", FeedID: id, Err: err}
	}
	if err := requireRowsAffected(res, id, "mark_sync_success"); err != nil {
		return err
	}

	// last_successful_sync only ever advances;
	// a candidate older than the current value is silently ignored.
	if _, err := s.db.ExecContext(ctx, `
		UPDATE feed SET last_successful_sync = ?
		WHERE id = ? AND (last_successful_sync IS NULL OR last_successful_sync <= ?)
	`, timeToStr(ts), id, timeToStr(ts)); err != nil {
		return &apperrors.DatabaseOperationError{Op: "mark_sync_success", FeedID: id, Err: err}
	}
	return nil
}

// MarkSyncFailure records a failed sync attempt, incrementing
// consecutive_failures.
func (s *FeedStore) MarkSyncFailure(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feed SET last_failed_sync = ?, consecutive_failures = consecutive_failures + 1
		WHERE id = ?
	`, timeToStr(time.Now().UTC()), id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "mark_sync_failure", FeedID: id, Err: err}
	}
	return requireRowsAffected(res, id, "mark_sync_failure")
}

// MarkRSSGenerated records a successful RSS (re)generation.
func (s *FeedStore) MarkRSSGenerated(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feed SET last_rss_generation = ? WHERE id = ?`,
		timeToStr(time.Now().UTC()), id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "mark_rss_generated", FeedID: id, Err: err}
	}
	return requireRowsAffected(res, id, "mark_rss_generated")
}

// UpdateTotalDownloads reconciles the trigger-maintained total_downloads
// counter, used when bulk-repopulating a feed's downloads outside the
// normal insert/update paths the triggers watch.
func (s *FeedStore) UpdateTotalDownloads(ctx context.Context, id string, count int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feed SET total_downloads = ? WHERE id = ?`, count, id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "update_total_downloads", FeedID: id, Err: err}
	}
	return requireRowsAffected(res, id, "update_total_downloads")
}

// ResetLastSuccessfulSync is the explicit admin-only reset path
// permitted operation that can move it backwards.
func (s *FeedStore) ResetLastSuccessfulSync(ctx context.Context, id string, to time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feed SET last_successful_sync = ? WHERE id = ?`,
		timeToStr(to), id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "reset_last_successful_sync", FeedID: id, Err: err}
	}
	return requireRowsAffected(res, id, "reset_last_successful_sync")
}

// DeleteFeed removes a feed row outright. Only tests call it; the
// reconciler archives removed feeds instead of deleting them.
func (s *FeedStore) DeleteFeed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feed WHERE id = ?`, id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "delete_feed", FeedID: id, Err: err}
	}
	return requireRowsAffected(res, id, "delete_feed")
}

func requireRowsAffected(res sql.Result, feedID, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: op, FeedID: feedID, Err: err}
	}
	if n == 0 {
		return &apperrors.FeedNotFoundError{FeedID: feedID}
	}
	return nil
}

func joinSet(sets []string) string {
	out := ""
	for i, s := range sets {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
