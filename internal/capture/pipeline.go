// Package capture provides the screenshot and text recognition adapters used
// when the hotkey fires: an external screenshot command or an image file, and
// the tesseract command line tool.
package capture

import (
	"context"
	"image"
	"os/exec"

	"github.com/charmbracelet/log"

	"lmbuddy/internal/config"
	"lmbuddy/internal/logger"
)

// Capturer produces a screenshot.
type Capturer interface {
	Capture(ctx context.Context) (image.Image, error)
}

// TextExtractor recognizes text in an image.
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Image) (string, error)
}

// lookPath reports whether a binary is available. Tests replace it.
var lookPath = exec.LookPath

// Pipeline combines a capturer and a text extractor into the capture
// collaborator of the engine.
type Pipeline struct {
	capturer Capturer
	ocr      TextExtractor
	binaries []string
	log      *log.Logger
}

// NewPipeline creates a pipeline from its two halves.
func NewPipeline(capturer Capturer, ocr TextExtractor) *Pipeline {
	return &Pipeline{capturer: capturer, ocr: ocr, log: logger.NewStyledLogger("Capture")}
}

// FromConfig builds the command-based pipeline described by cfg. A non-empty
// imagePath replaces the screenshot command with that file.
func FromConfig(cfg config.Config, imagePath string) *Pipeline {
	ocr := &TesseractOCR{Path: cfg.TesseractPath, Language: cfg.OCRLanguage}

	var capturer Capturer
	binaries := []string{ocr.binary()}
	if imagePath != "" {
		capturer = &FileCapturer{Path: imagePath}
	} else {
		command := cfg.ScreenshotCommand
		if command == "" {
			command = DefaultScreenshotCommand()
		}
		capturer = &CommandCapturer{Command: command, Delay: cfg.ScreenshotDelayDuration()}
		if argv, err := splitCommand(command, ""); err == nil {
			binaries = append(binaries, argv[0])
		}
	}

	p := NewPipeline(capturer, ocr)
	p.binaries = binaries
	return p
}

// Name returns "capture".
func (p *Pipeline) Name() string {
	return "capture"
}

// Initialize warns about missing external tools. Missing tools surface later
// as capture or OCR errors, so they do not fail startup.
func (p *Pipeline) Initialize() error {
	for _, bin := range p.binaries {
		if _, err := lookPath(bin); err != nil {
			p.log.Warn("External tool not found", "binary", bin, "error", err)
		}
	}
	return nil
}

// Shutdown does nothing; commands are bound to the caller's context.
func (p *Pipeline) Shutdown() error {
	return nil
}

// CaptureActiveWindow takes a screenshot.
func (p *Pipeline) CaptureActiveWindow(ctx context.Context) (image.Image, error) {
	img, err := p.capturer.Capture(ctx)
	if err != nil {
		p.log.Error("Capture failed", "error", err)
		return nil, err
	}
	b := img.Bounds()
	p.log.Debug("Captured image", "width", b.Dx(), "height", b.Dy())
	return img, nil
}

// ExtractText runs text recognition on img.
func (p *Pipeline) ExtractText(ctx context.Context, img image.Image) (string, error) {
	text, err := p.ocr.ExtractText(ctx, img)
	if err != nil {
		p.log.Warn("OCR failed", "error", err)
		return "", err
	}
	p.log.Debug("OCR finished", "length", len(text))
	return text, nil
}
