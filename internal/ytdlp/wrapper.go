package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"anypod/internal/apperrors"
	"anypod/internal/db"
)

// ExtractorCore wraps the external media-extractor binary (yt-dlp by
// default). It never interprets site-specific metadata itself; that is
// the Handler's job.
type ExtractorCore struct {
	BinPath string
	Timeout time.Duration
	probe   *FFProbe
}

// NewExtractorCore constructs a core pointed at binPath, defaulting the
// metadata-fetch timeout to five minutes. DownloadMediaToFile does not
// use it; media downloads have a fixed two-hour limit.
func NewExtractorCore(binPath, ffprobePath string) *ExtractorCore {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &ExtractorCore{BinPath: binPath, Timeout: 5 * time.Minute, probe: NewFFProbe(ffprobePath)}
}

// FFProbe returns the ffprobe collaborator handlers use for the
// duration-probe fallback when the extractor omits it.
func (c *ExtractorCore) FFProbe() *FFProbe { return c.probe }

// DetermineFetchStrategy classifies sourceURL by delegating to the
// owning Handler. The handlers classify from the URL text alone and do
// not run the extractor; a YouTube channel root gets "/videos" appended
// without checking that the tab exists.
func (c *ExtractorCore) DetermineFetchStrategy(ctx context.Context, feedID, sourceURL string, userArgs []string) (string, db.SourceType, error) {
	h := Resolve(sourceURL)
	resolved, sourceType, err := h.ClassifySource(ctx, c, sourceURL)
	if err != nil {
		return "", db.SourceUnknown, &apperrors.YtdlpAPIError{FeedID: feedID, URL: sourceURL, Err: err}
	}
	return resolved, sourceType, nil
}

// FetchNewDownloadsMetadata runs the extractor in metadata-only mode and
// maps each JSON line to a Download via the owning Handler. Items the
// handler filters out are silently dropped (apperrors.ErrFiltered).
func (c *ExtractorCore) FetchNewDownloadsMetadata(ctx context.Context, opts FetchOpts) ([]db.Download, error) {
	h := Resolve(opts.ResolvedURL)

	args := []string{"--skip-download", "--print-json", "--ignore-errors", "--no-warnings"}
	if opts.SourceType != db.SourceSingleVideo && opts.FetchSince != nil {
		args = append(args, "--dateafter", opts.FetchSince.UTC().Format("20060102"))
	}
	if opts.KeepLast != nil && *opts.KeepLast > 0 && opts.SourceType != db.SourceSingleVideo {
		args = append(args, "--playlist-end", fmt.Sprint(*opts.KeepLast))
	}
	if opts.CookiesPath != "" {
		args = append(args, "--cookies", opts.CookiesPath)
	}
	args = append(args, opts.UserArgs...)
	args = append(args, opts.ResolvedURL)

	entries, err := c.runJSONLines(ctx, args)
	if err != nil {
		return nil, &apperrors.YtdlpAPIError{FeedID: opts.FeedID, URL: opts.ResolvedURL, Err: err}
	}

	downloads := make([]db.Download, 0, len(entries))
	for _, entry := range entries {
		d, err := h.ToDownload(ctx, c, opts.FeedID, entry)
		if err != nil {
			if err == apperrors.ErrFiltered {
				continue
			}
			slog.Warn("skipping unmappable extractor entry", "feed_id", opts.FeedID, "entry_id", entry.ID, "error", err)
			continue
		}
		downloads = append(downloads, d)
	}

	if opts.KeepLast != nil && *opts.KeepLast > 0 && len(downloads) > *opts.KeepLast {
		downloads = downloads[:*opts.KeepLast]
	}
	return downloads, nil
}

// DownloadMediaToFile fetches the media for d into targetDir, writing to
// a .incomplete sidecar and renaming atomically on success. Returns the
// final path.
func (c *ExtractorCore) DownloadMediaToFile(ctx context.Context, d db.Download, userArgs []string, targetDir, cookiesPath string) (string, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", &apperrors.FileOperationError{Op: "mkdir", Path: targetDir, Err: err}
	}

	finalName := fmt.Sprintf("%s.%s", d.ID, d.Ext)
	finalPath := filepath.Join(targetDir, finalName)
	incompletePath := finalPath + ".incomplete"

	args := []string{"--no-warnings", "-o", incompletePath}
	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}
	args = append(args, userArgs...)
	args = append(args, d.SourceURL)

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Hour)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.BinPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(incompletePath)
		return "", &apperrors.YtdlpAPIError{FeedID: d.FeedID, URL: d.SourceURL, Err: fmt.Errorf("%w: %s", err, truncate(output, 2000))}
	}

	if _, err := os.Stat(incompletePath); err != nil {
		return "", &apperrors.YtdlpAPIError{FeedID: d.FeedID, URL: d.SourceURL, Err: fmt.Errorf("extractor reported success but %q is missing: %w", incompletePath, err)}
	}
	if err := os.Rename(incompletePath, finalPath); err != nil {
		return "", &apperrors.FileOperationError{Op: "rename", Path: finalPath, Err: err}
	}
	return finalPath, nil
}

// runJSONLines runs the extractor and parses each stdout line as JSON,
// the format --print-json emits for playlists and single items alike.
func (c *ExtractorCore) runJSONLines(ctx context.Context, args []string) ([]RawEntry, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.BinPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	// yt-dlp with --ignore-errors can exit non-zero while still having
	// produced usable JSON for the entries it could reach; only treat a
	// non-zero exit with zero parsed lines as fatal.
	entries, parseErr := parseJSONLines(stdout.Bytes())
	if err != nil && len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", err, truncate(stderr.Bytes(), 2000))
	}
	if parseErr != nil && len(entries) == 0 {
		return nil, parseErr
	}
	return entries, nil
}

func parseJSONLines(raw []byte) ([]RawEntry, error) {
	var entries []RawEntry
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e RawEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return entries, fmt.Errorf("parse extractor json line: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
