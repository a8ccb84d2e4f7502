package llm

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"

	"lmbuddy/internal/logger"
)

// Image encoding defaults.
const (
	DefaultJPEGQuality = 75
	DefaultMaxImageKB  = 500
	// MinJPEGQuality is the floor of the quality ladder.
	MinJPEGQuality = 10
	qualityStep    = 10
)

// Encoders used by the quality ladder. Tests replace them to force failures.
var (
	encodeJPEG = func(w io.Writer, img image.Image, quality int) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
	encodePNG = png.Encode
)

// EncodedImage is the result of encoding an image for the request.
type EncodedImage struct {
	MIME    string
	Data    []byte
	Quality int // JPEG quality used; 0 for PNG
	// Reencodes counts encodes after the first one.
	Reencodes int
}

// DataURL returns the data URL form of the encoded image.
func (e EncodedImage) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", e.MIME, base64.StdEncoding.EncodeToString(e.Data))
}

// ImageToDataURL encodes img as a JPEG data URL, lowering the quality in steps
// of 10 down to 10 while it exceeds maxKB. If JPEG encoding fails altogether,
// a PNG is produced without any size reduction.
func ImageToDataURL(img image.Image, quality, maxKB int) (string, error) {
	enc, err := EncodeImage(img, quality, maxKB)
	if err != nil {
		return "", err
	}
	return enc.DataURL(), nil
}

// EncodeImage runs the quality ladder and returns the encoded bytes.
func EncodeImage(img image.Image, quality, maxKB int) (EncodedImage, error) {
	if img == nil {
		return EncodedImage{}, errors.New("no image to encode")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if maxKB <= 0 {
		maxKB = DefaultMaxImageKB
	}
	budget := maxKB * 1024

	rgb := flattenRGB(img)

	var buf bytes.Buffer
	if err := encodeJPEG(&buf, rgb, quality); err != nil {
		logger.Warn("JPEG encoding failed, falling back to PNG", "error", err)
		buf.Reset()
		if err := encodePNG(&buf, img); err != nil {
			return EncodedImage{}, fmt.Errorf("failed to encode image: %w", err)
		}
		return EncodedImage{MIME: "image/png", Data: buf.Bytes()}, nil
	}

	reencodes := 0
	for buf.Len() > budget && quality > MinJPEGQuality {
		next := max(quality-qualityStep, MinJPEGQuality)

		var out bytes.Buffer
		if err := encodeJPEG(&out, rgb, next); err != nil {
			logger.Warn("JPEG re-encode failed, keeping previous result", "quality", next, "error", err)
			break
		}
		buf = out
		quality = next
		reencodes++
	}

	logger.Debug("Image encoded", "kb", buf.Len()/1024, "quality", quality, "reencodes", reencodes)
	return EncodedImage{MIME: "image/jpeg", Data: buf.Bytes(), Quality: quality, Reencodes: reencodes}, nil
}

// flattenRGB composites img over white into an opaque image.
func flattenRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
