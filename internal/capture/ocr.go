package capture

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTesseractPath is the tesseract binary looked up on PATH.
const DefaultTesseractPath = "tesseract"

// TesseractOCR extracts text by running the tesseract command line tool.
type TesseractOCR struct {
	Path string
	// Language is a tesseract language code such as "deu" or "eng+deu".
	Language string
}

// ExtractText writes img to a temporary PNG and returns tesseract's output
// with surrounding whitespace removed.
func (t *TesseractOCR) ExtractText(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: no image", ErrOCR)
	}

	dir, err := os.MkdirTemp("", "lmbuddy-ocr-")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCR, err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	file := filepath.Join(dir, "capture.png")
	if err := writePNG(file, img); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCR, err)
	}

	argv := []string{t.binary(), file, "stdout"}
	if lang := strings.TrimSpace(t.Language); lang != "" {
		argv = append(argv, "-l", lang)
	}

	out, err := run(ctx, argv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCR, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (t *TesseractOCR) binary() string {
	if p := strings.TrimSpace(t.Path); p != "" {
		return p
	}
	return DefaultTesseractPath
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
