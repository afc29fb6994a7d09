package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewSource(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageCompressorShrinksLargeImages(t *testing.T) {
	data := noisyPNG(t, 400, 200)
	c := ImageCompressor{MaxDimension: 100, MaxBytes: 64 * 1024}

	out, err := c.Compress(context.Background(), SourceImage{Name: "cat.png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", out.Name)
	assert.Equal(t, "image/jpeg", out.ContentType)
	assert.Less(t, len(out.Data), len(data))

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestImageCompressorKeepsSmallImages(t *testing.T) {
	data := noisyPNG(t, 10, 10)
	c := ImageCompressor{MaxDimension: 100, MaxBytes: 1 << 20}

	out, err := c.Compress(context.Background(), SourceImage{Name: "dot.png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "dot.png", out.Name)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, data, out.Data)
}

func TestImageCompressorRejectsBadInput(t *testing.T) {
	c := ImageCompressor{MaxDimension: 100, MaxBytes: 1 << 20}

	_, err := c.Compress(context.Background(), SourceImage{Name: "empty.png"})
	assert.Equal(t, ErrNoFile, err)

	_, err = c.Compress(context.Background(), SourceImage{Name: "notes.txt", Data: []byte("hello there")})
	assert.Equal(t, ErrUnreadableImage, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestJPEGName(t *testing.T) {
	assert.Equal(t, "a.jpg", jpegName("a.png"))
	assert.Equal(t, "b.JPEG", jpegName("b.JPEG"))
	assert.Equal(t, "noext.jpg", jpegName("noext"))
}
