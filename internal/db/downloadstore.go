package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"anypod/internal/apperrors"
)

const downloadColumns = `feed_id, id, source_url, title, description, published, duration, ext, mime_type,
	filesize, status, retries, last_error, discovered_at, updated_at, downloaded_at,
	remote_thumbnail_url, thumbnail_ext, playlist_index, download_logs,
	transcript_ext, transcript_lang, transcript_source`

// DownloadStore is the only legal path for mutating Download rows.
type DownloadStore struct {
	db *sql.DB
}

func NewDownloadStore(conn *sql.DB) *DownloadStore { return &DownloadStore{db: conn} }

func scanDownload(row interface{ Scan(dest ...any) error }) (Download, error) {
	var d Download
	var published, discoveredAt, updatedAt string
	var downloadedAt, lastError sql.NullString
	var remoteThumbURL, thumbExt, transcriptExt, transcriptLang, transcriptSource sql.NullString
	var playlistIndex sql.NullInt64

	err := row.Scan(
		&d.FeedID, &d.ID, &d.SourceURL, &d.Title, &d.Description, &published, &d.Duration,
		&d.Ext, &d.MimeType, &d.Filesize, &d.Status, &d.Retries, &lastError,
		&discoveredAt, &updatedAt, &downloadedAt,
		&remoteThumbURL, &thumbExt, &playlistIndex, &d.DownloadLogs,
		&transcriptExt, &transcriptLang, &transcriptSource,
	)
	if err != nil {
		return Download{}, err
	}

	d.LastError = strOrNil(lastError)
	d.RemoteThumbnailURL = strOrNil(remoteThumbURL)
	d.ThumbnailExt = strOrNil(thumbExt)
	d.PlaylistIndex = intOrNil(playlistIndex)
	d.TranscriptExt = strOrNil(transcriptExt)
	d.TranscriptLang = strOrNil(transcriptLang)
	if transcriptSource.Valid {
		ts := TranscriptSource(transcriptSource.String)
		d.TranscriptSource = &ts
	}

	if d.Published, err = strToTime(published); err != nil {
		return Download{}, fmt.Errorf("parse published: %w", err)
	}
	if d.DiscoveredAt, err = strToTime(discoveredAt); err != nil {
		return Download{}, fmt.Errorf("parse discovered_at: %w", err)
	}
	if d.UpdatedAt, err = strToTime(updatedAt); err != nil {
		return Download{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if d.DownloadedAt, err = strPtrToTimePtr(downloadedAt); err != nil {
		return Download{}, fmt.Errorf("parse downloaded_at: %w", err)
	}
	return d, nil
}

var transcriptSourceCol = func(ts *TranscriptSource) sql.NullString {
	if ts == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*ts), Valid: true}
}

// UpsertDownload inserts or fully overwrites a Download by (feed_id, id).
func (s *DownloadStore) UpsertDownload(ctx context.Context, d Download) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download (feed_id, id, source_url, title, description, published, duration, ext,
			mime_type, filesize, status, retries, last_error, discovered_at, updated_at, downloaded_at,
			remote_thumbnail_url, thumbnail_ext, playlist_index, download_logs,
			transcript_ext, transcript_lang, transcript_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, id) DO UPDATE SET
			source_url = excluded.source_url,
			title = excluded.title,
			description = excluded.description,
			published = excluded.published,
			duration = excluded.duration,
			ext = excluded.ext,
			mime_type = excluded.mime_type,
			filesize = excluded.filesize,
			status = excluded.status,
			retries = excluded.retries,
			last_error = excluded.last_error,
			downloaded_at = excluded.downloaded_at,
			remote_thumbnail_url = excluded.remote_thumbnail_url,
			thumbnail_ext = excluded.thumbnail_ext,
			playlist_index = excluded.playlist_index,
			download_logs = excluded.download_logs,
			transcript_ext = excluded.transcript_ext,
			transcript_lang = excluded.transcript_lang,
			transcript_source = excluded.transcript_source
	`,
		d.FeedID, d.ID, d.SourceURL, d.Title, d.Description, timeToStr(d.Published), d.Duration,
		d.Ext, d.MimeType, d.Filesize, d.Status, d.Retries, nullStr(d.LastError),
		timeToStr(orNow(d.DiscoveredAt)), timeToStr(orNow(d.UpdatedAt)), nullTimePtr(d.DownloadedAt),
		nullStr(d.RemoteThumbnailURL), nullStr(d.ThumbnailExt), nullInt(d.PlaylistIndex), d.DownloadLogs,
		nullStr(d.TranscriptExt), nullStr(d.TranscriptLang), transcriptSourceCol(d.TranscriptSource),
	)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "upsert_download", FeedID: d.FeedID, Err: err}
	}
	return nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// DownloadUpdate is a partial field update applied by composite key. Only
// non-nil fields are written.
type DownloadUpdate struct {
	Title              *string
	Description        *string
	Published          *time.Time
	Duration           *float64
	Ext                *string
	MimeType           *string
	Filesize           *int64
	RemoteThumbnailURL *string
	ThumbnailExt       *string
	TranscriptExt      *string
	TranscriptLang     *string
	TranscriptSource   *TranscriptSource
	PlaylistIndex      *int
	DownloadLogs       *string
}

func (u DownloadUpdate) isEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Published == nil && u.Duration == nil &&
		u.Ext == nil && u.MimeType == nil && u.Filesize == nil && u.RemoteThumbnailURL == nil &&
		u.ThumbnailExt == nil && u.TranscriptExt == nil && u.TranscriptLang == nil &&
		u.TranscriptSource == nil && u.PlaylistIndex == nil && u.DownloadLogs == nil
}

// UpdateDownload applies a partial field update. No-op if u is empty.
func (s *DownloadStore) UpdateDownload(ctx context.Context, feedID, id string, u DownloadUpdate) error {
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
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Published != nil {
		add("published", timeToStr(*u.Published))
	}
	if u.Duration != nil {
		add("duration", *u.Duration)
	}
	if u.Ext != nil {
		add("ext", *u.Ext)
	}
	if u.MimeType != nil {
		add("mime_type", *u.MimeType)
	}
	if u.Filesize != nil {
		add("filesize", *u.Filesize)
	}
	if u.RemoteThumbnailURL != nil {
		add("remote_thumbnail_url", *u.RemoteThumbnailURL)
	}
	if u.ThumbnailExt != nil {
		add("thumbnail_ext", *u.ThumbnailExt)
	}
	if u.TranscriptExt != nil {
		add("transcript_ext", *u.TranscriptExt)
	}
	if u.TranscriptLang != nil {
		add("transcript_lang", *u.TranscriptLang)
	}
	if u.TranscriptSource != nil {
		add("transcript_source", string(*u.TranscriptSource))
	}
	if u.PlaylistIndex != nil {
		add("playlist_index", *u.PlaylistIndex)
	}
	if u.DownloadLogs != nil {
		add("download_logs", *u.DownloadLogs)
	}

	args = append(args, feedID, id)
	query := fmt.Sprintf(`UPDATE download SET %s WHERE feed_id = ? AND id = ?`, joinSet(sets))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "update_download", FeedID: feedID, Err: err}
	}
	return requireDownloadRowsAffected(res, feedID, id, "update_download")
}

// GetDownloadByID returns the download, or a *DownloadNotFoundError.
func (s *DownloadStore) GetDownloadByID(ctx context.Context, feedID, id string) (Download, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+downloadColumns+` FROM download WHERE feed_id = ? AND id = ?`, feedID, id)
	d, err := scanDownload(row)
	if err == sql.ErrNoRows {
		return Download{}, &apperrors.DownloadNotFoundError{FeedID: feedID, DownloadID: id}
	}
	if err != nil {
		return Download{}, &apperrors.DatabaseOperationError{Op: "get_download_by_id", FeedID: feedID, Err: err}
	}
	return d, nil
}

// GetDownloadsByStatusOpts bundles the optional filters for
// GetDownloadsByStatus.
type GetDownloadsByStatusOpts struct {
	FeedID        string // empty = all feeds
	PublishedAfter *time.Time
	Limit         int // -1 = no limit
	Offset        int
}

// GetDownloadsByStatus returns downloads with the given status, ordered
// by published ascending then id.
func (s *DownloadStore) GetDownloadsByStatus(ctx context.Context, status DownloadStatus, opts GetDownloadsByStatusOpts) ([]Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM download WHERE status = ?`
	args := []any{status}
	if opts.FeedID != "" {
		query += ` AND feed_id = ?`
		args = append(args, opts.FeedID)
	}
	if opts.PublishedAfter != nil {
		query += ` AND published >= ?`
		args = append(args, timeToStr(*opts.PublishedAfter))
	}
	query += ` ORDER BY published ASC, id ASC`
	if opts.Limit >= 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apperrors.DatabaseOperationError{Op: "get_downloads_by_status", FeedID: opts.FeedID, Err: err}
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, &apperrors.DatabaseOperationError{Op: "get_downloads_by_status", FeedID: opts.FeedID, Err: err}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var prunableStatuses = []DownloadStatus{
	StatusUpcoming, StatusQueued, StatusDownloaded, StatusError,
}

// GetDownloadsToPruneByKeepLast returns prunable (non-ARCHIVED,
// non-SKIPPED) items beyond the keepLast most recent, ordered by
// published DESC, id DESC. Returns nil when keepLast <= 0.
func (s *DownloadStore) GetDownloadsToPruneByKeepLast(ctx context.Context, feedID string, keepLast int) ([]Download, error) {
	if keepLast <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadColumns+` FROM download
		WHERE feed_id = ? AND status NOT IN ('ARCHIVED', 'SKIPPED')
		ORDER BY published DESC, id DESC
		LIMIT -1 OFFSET ?
	`, feedID, keepLast)
	if err != nil {
		return nil, &apperrors.DatabaseOperationError{Op: "get_downloads_to_prune_by_keep_last", FeedID: feedID, Err: err}
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, &apperrors.DatabaseOperationError{Op: "get_downloads_to_prune_by_keep_last", FeedID: feedID, Err: err}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDownloadsToPruneBySince returns prunable items published strictly
// before cutoff (UTC instant).
func (s *DownloadStore) GetDownloadsToPruneBySince(ctx context.Context, feedID string, cutoff time.Time) ([]Download, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadColumns+` FROM download
		WHERE feed_id = ? AND status NOT IN ('ARCHIVED', 'SKIPPED') AND published < ?
		ORDER BY published ASC, id ASC
	`, feedID, timeToStr(cutoff))
	if err != nil {
		return nil, &apperrors.DatabaseOperationError{Op: "get_downloads_to_prune_by_since", FeedID: feedID, Err: err}
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, &apperrors.DatabaseOperationError{Op: "get_downloads_to_prune_by_since", FeedID: feedID, Err: err}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountDownloadsByStatus counts rows with the given status, optionally
// scoped to one feed.
func (s *DownloadStore) CountDownloadsByStatus(ctx context.Context, status DownloadStatus, feedID string) (int, error) {
	query := `SELECT COUNT(*) FROM download WHERE status = ?`
	args := []any{status}
	if feedID != "" {
		query += ` AND feed_id = ?`
		args = append(args, feedID)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, &apperrors.DatabaseOperationError{Op: "count_downloads_by_status", FeedID: feedID, Err: err}
	}
	return n, nil
}

// MarkAsDownloaded transitions a download to DOWNLOADED, clearing
// last_error and resetting retries.
func (s *DownloadStore) MarkAsDownloaded(ctx context.Context, feedID, id, ext string, filesize int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE download SET status = ?, ext = ?, filesize = ?, last_error = NULL, retries = 0
		WHERE feed_id = ? AND id = ?
	`, StatusDownloaded, ext, filesize, feedID, id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "mark_as_downloaded", FeedID: feedID, Err: err}
	}
	return requireDownloadRowsAffected(res, feedID, id, "mark_as_downloaded")
}

// MarkAsQueuedFromUpcoming transitions UPCOMING -> QUEUED.
func (s *DownloadStore) MarkAsQueuedFromUpcoming(ctx context.Context, feedID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE download SET status = ? WHERE feed_id = ? AND id = ? AND status = ?
	`, StatusQueued, feedID, id, StatusUpcoming)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "mark_as_queued_from_upcoming", FeedID: feedID, Err: err}
	}
	return requireDownloadRowsAffected(res, feedID, id, "mark_as_queued_from_upcoming")
}

// ArchiveDownload transitions to ARCHIVED. Only the status changes:
// retries and last_error keep whatever values they had, whatever the
// prior status.
func (s *DownloadStore) ArchiveDownload(ctx context.Context, feedID, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE download SET status = ? WHERE feed_id = ? AND id = ?`,
		StatusArchived, feedID, id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "archive_download", FeedID: feedID, Err: err}
	}
	return requireDownloadRowsAffected(res, feedID, id, "archive_download")
}

// RequeueDownloads bulk-transitions downloads to QUEUED, resetting
// retries/last_error. If ids is empty, all downloads matching fromStatus
// (if set) for the feed are requeued. Returns the affected count.
func (s *DownloadStore) RequeueDownloads(ctx context.Context, feedID string, ids []string, fromStatus *DownloadStatus) (int, error) {
	query := `UPDATE download SET status = ?, retries = 0, last_error = NULL WHERE feed_id = ?`
	args := []any{StatusQueued, feedID}

	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND id IN (` + joinSet(placeholders) + `)`
	}
	if fromStatus != nil {
		query += ` AND status = ?`
		args = append(args, *fromStatus)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &apperrors.DatabaseOperationError{Op: "requeue_downloads", FeedID: feedID, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &apperrors.DatabaseOperationError{Op: "requeue_downloads", FeedID: feedID, Err: err}
	}
	return int(n), nil
}

// BumpRetries increments retries and sets last_error; if the resulting
// retry count reaches maxAllowedErrors the download transitions to
// ERROR, otherwise its status is left unchanged.
func (s *DownloadStore) BumpRetries(ctx context.Context, feedID, id, errMsg string, maxAllowedErrors int) (newRetries int, finalStatus DownloadStatus, transitionedToError bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", false, &apperrors.DatabaseOperationError{Op: "bump_retries", FeedID: feedID, Err: err}
	}
	defer tx.Rollback()

	var retries int
	var status DownloadStatus
	if err := tx.QueryRowContext(ctx, `SELECT retries, status FROM download WHERE feed_id = ? AND id = ?`, feedID, id).
		Scan(&retries, &status); err != nil {
		if err == sql.ErrNoRows {
			return 0, "", false, &apperrors.DownloadNotFoundError{FeedID: feedID, DownloadID: id}
		}
		return 0, "", false, &apperrors.DatabaseOperationError{Op: "bump_retries", FeedID: feedID, Err: err}
	}

	retries++
	if retries >= maxAllowedErrors {
		status = StatusError
		transitionedToError = true
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE download SET retries = ?, last_error = ?, status = ? WHERE feed_id = ? AND id = ?
	`, retries, errMsg, status, feedID, id); err != nil {
		return 0, "", false, &apperrors.DatabaseOperationError{Op: "bump_retries", FeedID: feedID, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, "", false, &apperrors.DatabaseOperationError{Op: "bump_retries", FeedID: feedID, Err: err}
	}
	return retries, status, transitionedToError, nil
}

// DeleteDownload removes a download row outright.
func (s *DownloadStore) DeleteDownload(ctx context.Context, feedID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM download WHERE feed_id = ? AND id = ?`, feedID, id)
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: "delete_download", FeedID: feedID, Err: err}
	}
	return requireDownloadRowsAffected(res, feedID, id, "delete_download")
}

func requireDownloadRowsAffected(res sql.Result, feedID, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &apperrors.DatabaseOperationError{Op: op, FeedID: feedID, Err: err}
	}
	if n == 0 {
		return &apperrors.DownloadNotFoundError{FeedID: feedID, DownloadID: id}
	}
	return nil
}
