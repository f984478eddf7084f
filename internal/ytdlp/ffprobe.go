package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"anypod/internal/apperrors"
)

// FFProbe wraps the ffprobe binary for the two queries the pipeline
// needs: image codec classification and remote media duration.
type FFProbe struct {
	BinPath string
	Timeout time.Duration
}

func NewFFProbe(binPath string) *FFProbe {
	if binPath == "" {
		binPath = "ffprobe"
	}
	return &FFProbe{BinPath: binPath, Timeout: 30 * time.Second}
}

type ffprobeStream struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

func (p *FFProbe) probe(ctx context.Context, path string) (ffprobeOutput, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path}
	cmd := exec.CommandContext(runCtx, p.BinPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return ffprobeOutput{}, &apperrors.FFProbeError{Args: args, Err: err}
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return ffprobeOutput{}, &apperrors.FFProbeError{Args: args, Err: fmt.Errorf("parse ffprobe json: %w", err)}
	}
	return parsed, nil
}

// IsJPEG reports whether the first video stream of path is mjpeg.
func (p *FFProbe) IsJPEG(ctx context.Context, path string) (bool, error) {
	out, err := p.probe(ctx, path)
	if err != nil {
		return false, err
	}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			return s.CodecName == "mjpeg", nil
		}
	}
	return false, nil
}

// Duration returns the media duration in seconds of a local or remote
// (http/https) URL.
func (p *FFProbe) Duration(ctx context.Context, urlOrPath string) (float64, error) {
	out, err := p.probe(ctx, urlOrPath)
	if err != nil {
		return 0, err
	}
	if out.Format.Duration == "" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return 0, &apperrors.FFProbeError{Args: []string{urlOrPath}, Err: fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)}
	}
	return d, nil
}
