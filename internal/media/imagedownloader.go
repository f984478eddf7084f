package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"anypod/internal/apperrors"
	"anypod/internal/ytdlp"
)

// ImageDownloader fetches a feed or episode cover image over direct HTTP,
// probes it, and places it as a final .jpg, converting with ffmpeg when
// necessary. It does not fetch playlist thumbnails through the extractor.
type ImageDownloader struct {
	files  *FileManager
	probe  *ytdlp.FFProbe
	ffmpeg *ytdlp.FFmpeg
	client *http.Client
}

func NewImageDownloader(files *FileManager, probe *ytdlp.FFProbe, ffmpeg *ytdlp.FFmpeg) *ImageDownloader {
	return &ImageDownloader{files: files, probe: probe, ffmpeg: ffmpeg, client: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch downloads imageURL to a temp file, classifies it, and places the
// final JPEG at dstPath (converting if the source isn't already JPEG).
// Returns the final extension, always "jpg".
func (d *ImageDownloader) Fetch(ctx context.Context, imageURL, dstPath string) (ext string, err error) {
	tmp, err := os.CreateTemp("", "anypod-image-*")
	if err != nil {
		return "", &apperrors.FileOperationError{Op: "create_temp", Path: "", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := d.download(ctx, imageURL, tmp); err != nil {
		tmp.Close()
		return "", &apperrors.ImageDownloadError{URL: imageURL, Err: err}
	}
	tmp.Close()

	isJPEG, err := d.probe.IsJPEG(ctx, tmpPath)
	if err != nil {
		return "", &apperrors.ImageDownloadError{URL: imageURL, Err: err}
	}

	if isJPEG {
		if err := d.files.MoveInto(tmpPath, dstPath); err != nil {
			return "", &apperrors.ImageDownloadError{URL: imageURL, Err: err}
		}
		return "jpg", nil
	}

	if err := d.ffmpeg.ConvertToJPEG(ctx, tmpPath, dstPath); err != nil {
		return "", &apperrors.ImageDownloadError{URL: imageURL, Err: err}
	}
	return "jpg", nil
}

func (d *ImageDownloader) download(ctx context.Context, url string, dst *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %q: unexpected status %s", url, resp.Status)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("write %q: %w", url, err)
	}
	return nil
}
