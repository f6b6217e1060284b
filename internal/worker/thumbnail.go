package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strconv"
	"strings"
)

// Thumbnailer extracts a still image from a video file
type Thumbnailer interface {
	Extract(ctx context.Context, input, output string) error
}

// FFmpeg shells out to the ffmpeg binary
type FFmpeg struct {
	Path   string
	Offset string // seek position, e.g. "00:00:01"
	Width  int
}

func NewFFmpeg(binary, offset string, width int) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if offset == "" {
		offset = "00:00:01"
	}
	if width <= 0 {
		width = 320
	}
	return &FFmpeg{Path: binary, Offset: offset, Width: width}
}

// Args builds the command line for one extraction
func (f *FFmpeg) Args(input, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", f.Offset,
		"-i", input,
		"-frames:v", "1",
		"-vf", "scale=" + strconv.Itoa(f.Width) + ":-1",
		output,
	}
}

func (f *FFmpeg) Extract(ctx context.Context, input, output string) error {
	cmd := exec.CommandContext(ctx, f.Path, f.Args(input, output)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
	}
	return nil
}

// ThumbnailKey puts the thumbnail next to the video, swapping the extension
// for .jpg
func ThumbnailKey(objectKey string) string {
	ext := path.Ext(objectKey)
	base := strings.TrimSuffix(objectKey, ext)
	key := base + ".jpg"
	if key == objectKey {
		key = base + ".thumb.jpg"
	}
	return key
}
