package thumbnail

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// FromVideo extracts a single frame from the video at the fixed seek offset
// and runs it through the image path. The frame is written to a temporary
// file that is removed on every exit path.
//
// A fixed offset is cheap and deterministic; thumbnails are previews, not
// poster-frame selections.
func (g *Generator) FromVideo(ctx context.Context, srcPath string) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH", ErrFrameExtraction)
	}

	tmp, err := os.CreateTemp("", "frame-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameExtraction, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	// -ss before -i seeks without decoding the whole stream.
	args := []string{
		"-ss", strconv.Itoa(g.seekSec),
		"-i", srcPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		tmpPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrFrameExtraction, err, out)
	}

	frame, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameExtraction, err)
	}
	defer frame.Close()

	return g.FromImage(ctx, frame)
}
