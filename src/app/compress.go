package app

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// SourceImage is a file picked for upload.
type SourceImage struct {
	Name        string
	ContentType string
	Data        []byte
}

// Compressor shrinks an image before it is sent anywhere.
type Compressor interface {
	Compress(ctx context.Context, img SourceImage) (SourceImage, error)
}

// ImageCompressor bounds both the largest side and the encoded size of an
// image. Images already inside both bounds pass through untouched.
type ImageCompressor struct {
	MaxDimension uint
	MaxBytes     int
}

var jpegQualities = []int{85, 75, 65, 55, 45, 35}

func (c ImageCompressor) Compress(ctx context.Context, img SourceImage) (SourceImage, error) {
	if len(img.Data) == 0 {
		return SourceImage{}, ErrNoFile
	}
	mtype := mimetype.Detect(img.Data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return SourceImage{}, ErrUnreadableImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return SourceImage{}, ErrUnreadableImage
	}
	img.ContentType = mtype.String()
	if len(img.Data) <= c.MaxBytes && uint(cfg.Width) <= c.MaxDimension && uint(cfg.Height) <= c.MaxDimension {
		return img, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return SourceImage{}, ErrUnreadableImage
	}
	thumb := resize.Thumbnail(c.MaxDimension, c.MaxDimension, decoded, resize.Lanczos3)

	var buf bytes.Buffer
	for _, q := range jpegQualities {
		if err := ctx.Err(); err != nil {
			return SourceImage{}, err
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: q}); err != nil {
			return SourceImage{}, errors.Wrap(err, "encode jpeg")
		}
		if buf.Len() <= c.MaxBytes {
			break
		}
	}
	return SourceImage{
		Name:        jpegName(img.Name),
		ContentType: "image/jpeg",
		Data:        append([]byte(nil), buf.Bytes()...),
	}, nil
}

func jpegName(name string) string {
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return name
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}
