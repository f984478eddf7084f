package media

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"anypod/internal/db"
)

// TranscriptDownloader fetches a YouTube video's VTT subtitle track via
// the extractor binary. Absence of a transcript is not an error: callers
// get (false, nil) and move on.
type TranscriptDownloader struct {
	files     *FileManager
	ytDlpPath string
	timeout   time.Duration
}

func NewTranscriptDownloader(files *FileManager, ytDlpPath string) *TranscriptDownloader {
	return &TranscriptDownloader{files: files, ytDlpPath: ytDlpPath, timeout: 2 * time.Minute}
}

// Fetch attempts to download a subtitle track in lang for source of the
// given kind (creator-authored or auto-generated), writing it to
// dstPathNoExt + ".vtt". Returns whether a transcript was obtained.
func (d *TranscriptDownloader) Fetch(ctx context.Context, videoURL, lang string, source db.TranscriptSource, dstPathNoExt string) (bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outDir := filepath.Dir(dstPathNoExt)
	outTemplate := filepath.Join(outDir, filepath.Base(dstPathNoExt)+".%(ext)s")

	args := []string{
		"--skip-download",
		"--sub-langs", lang,
		"--sub-format", "vtt",
		"-o", outTemplate,
	}
	switch source {
	case db.TranscriptCreator:
		args = append(args, "--write-subs")
	case db.TranscriptAuto:
		args = append(args, "--write-auto-subs")
	default:
		return false, fmt.Errorf("unsupported transcript source %q", source)
	}
	args = append(args, videoURL)

	cmd := exec.CommandContext(runCtx, d.ytDlpPath, args...)
	if _, err := cmd.CombinedOutput(); err != nil {
		// yt-dlp exits non-zero when the requested track is unavailable;
		// that is "not available", not a failure worth surfacing.
		return false, nil
	}

	vttPath := dstPathNoExt + "." + lang + ".vtt"
	if d.files.Exists(vttPath) {
		final := dstPathNoExt + ".vtt"
		if vttPath != final {
			if err := d.files.MoveInto(vttPath, final); err != nil {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}
