package llm

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noiseImage(w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func TestEncodeImage_SmallImageSinglePass(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	enc, err := EncodeImage(img, DefaultJPEGQuality, DefaultMaxImageKB)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", enc.MIME)
	assert.Equal(t, DefaultJPEGQuality, enc.Quality)
	assert.Equal(t, 0, enc.Reencodes)

	decoded, err := jpeg.Decode(bytes.NewReader(enc.Data))
	require.NoError(t, err)
	assert.Equal(t, 32, decoded.Bounds().Dx())
}

func TestEncodeImage_QualityLadderStopsAtFloor(t *testing.T) {
	// Noise does not compress; a 1 KB budget can never be met.
	img := noiseImage(256, 256)

	enc, err := EncodeImage(img, DefaultJPEGQuality, 1)
	require.NoError(t, err)

	assert.Equal(t, MinJPEGQuality, enc.Quality)
	assert.LessOrEqual(t, enc.Reencodes, 7)
	assert.Equal(t, 7, enc.Reencodes)
	assert.Greater(t, len(enc.Data), 1024, "result is returned even though it is over budget")
}

func TestEncodeImage_LadderStopsOnceUnderBudget(t *testing.T) {
	img := noiseImage(128, 128)

	full, err := EncodeImage(img, DefaultJPEGQuality, 10_000)
	require.NoError(t, err)
	require.Equal(t, 0, full.Reencodes)

	// A budget just under the first encode forces at least one step down.
	budgetKB := len(full.Data)/1024 - 1
	require.Greater(t, budgetKB, 0)

	enc, err := EncodeImage(img, DefaultJPEGQuality, budgetKB)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, enc.Reencodes, 1)
	assert.Less(t, enc.Quality, DefaultJPEGQuality)
	if enc.Quality > MinJPEGQuality {
		assert.LessOrEqual(t, len(enc.Data), budgetKB*1024)
	}
}

func TestEncodeImage_FlattensTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	// fully transparent pixels become white
	enc, err := EncodeImage(img, 100, DefaultMaxImageKB)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(enc.Data))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(4, 4).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestEncodeImage_PNGFallback(t *testing.T) {
	orig := encodeJPEG
	defer func() { encodeJPEG = orig }()
	calls := 0
	encodeJPEG = func(io.Writer, image.Image, int) error {
		calls++
		return errors.New("no jpeg today")
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})

	url, err := ImageToDataURL(img, DefaultJPEGQuality, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "no quality loop for the lossless fallback")
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestImageToDataURL(t *testing.T) {
	url, err := ImageToDataURL(image.NewGray(image.Rect(0, 0, 2, 2)), 0, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

	_, err = ImageToDataURL(nil, DefaultJPEGQuality, DefaultMaxImageKB)
	assert.Error(t, err)
}
