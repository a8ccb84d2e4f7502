package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"lmbuddy/internal/logger"
)

// DefaultScreenshotCommand returns the screenshot command used when none is
// configured, or "" on platforms without a known tool.
func DefaultScreenshotCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "screencapture -x {file}"
	case "linux":
		return "gnome-screenshot -w -f {file}"
	default:
		return ""
	}
}

// CommandCapturer takes screenshots with an external command that writes an
// image file.
type CommandCapturer struct {
	Command string
	// Delay gives the user's window time to regain focus before the shot.
	Delay time.Duration
}

// Capture runs the screenshot command and decodes the file it wrote.
func (c *CommandCapturer) Capture(ctx context.Context) (image.Image, error) {
	if c.Command == "" {
		return nil, fmt.Errorf("%w: no screenshot command configured for %s", ErrCapture, runtime.GOOS)
	}

	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	dir, err := os.MkdirTemp("", "lmbuddy-capture-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	file := filepath.Join(dir, "screenshot.png")
	argv, err := splitCommand(c.Command, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}

	logger.Debug("Running screenshot command", "command", argv[0], "file", file)
	if _, err := run(ctx, argv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}

	img, err := decodeFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return img, nil
}
