package ytdlp

import (
	"context"
	"os/exec"
	"time"

	"anypod/internal/apperrors"
)

// FFmpeg wraps the ffmpeg binary; the pipeline's only use today is
// converting a non-JPEG cover image to JPG.
type FFmpeg struct {
	BinPath string
	Timeout time.Duration
}

func NewFFmpeg(binPath string) *FFmpeg {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpeg{BinPath: binPath, Timeout: time.Minute}
}

// ConvertToJPEG converts srcPath to a JPEG at dstPath, overwriting dstPath
// if present.
func (f *FFmpeg) ConvertToJPEG(ctx context.Context, srcPath, dstPath string) error {
	runCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	args := []string{"-y", "-i", srcPath, dstPath}
	cmd := exec.CommandContext(runCtx, f.BinPath, args...)
	if _, err := cmd.CombinedOutput(); err != nil {
		return &apperrors.FFmpegError{Args: args, Err: err}
	}
	return nil
}
